package config

import (
	"moodlesync/internal/service"
	"moodlesync/internal/source"
)

// SourceOptions is the template every source is created from, credentials
// are filled in per call.
func (c Config) SourceOptions(diagnostics source.Diagnostics) (source.Options, error) {
	mode, err := source.ParseMode(c.Moodle.Mode)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		Mode:           mode,
		Service:        c.Moodle.Service,
		Headless:       c.Headless(),
		ExecPath:       c.Moodle.ChromePath,
		AcceptLanguage: c.Moodle.AcceptLanguage,
		Diagnostics:    diagnostics,
	}, nil
}

// Credentials are the ones used by calls that do not bring their own.
func (c Config) Credentials() service.Credentials {
	return service.Credentials{
		BaseUrl:  c.Moodle.BaseUrl,
		Username: c.Moodle.Username,
		Password: c.Moodle.Password,
	}
}
