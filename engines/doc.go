// Package engines provides pre-wired engines for the supported transports.
//
//	engine := engines.NewHTTPEngine(engines.DefaultHTTPOptions())
//	engine.RegisterFunc("email.send", sendEmail)
//	engine.MustRun(ctx)
package engines
