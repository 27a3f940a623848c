// Package config loads and persists the single key/value configuration
// file (spec §6): a `[Configuration]` section with nickname, password,
// tcp_port, udp_port, and private_ip. Absent file means "not registered";
// a parse failure is a corrupt file; a wrong password is reported
// separately so the caller can re-prompt for credentials rather than
// treating both as "not registered" (restored from the original
// configuration.py revision this spec.md distillation dropped).
package config

import (
	"os"
	"strconv"

	"gopkg.in/ini.v1"

	"videocall/internal/errs"
)

// Config is the persisted local peer configuration.
type Config struct {
	Nickname  string
	Password  string
	TCPPort   int
	UDPPort   int
	PrivateIP bool
}

const section = "Configuration"

// Load reads cfg from path. Returns *errs.ConfigError{Kind: NoFile} if the
// file does not exist, or {Kind: WrongFile} if it exists but cannot be
// parsed or is missing required keys.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Config{}, &errs.ConfigError{Kind: errs.NoFile}
		}
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}

	sec, err := f.GetSection(section)
	if err != nil {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}

	cfg := Config{
		Nickname: sec.Key("nickname").String(),
		Password: sec.Key("password").String(),
	}
	if cfg.Nickname == "" || cfg.Password == "" {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile}
	}

	cfg.TCPPort, err = sec.Key("tcp_port").Int()
	if err != nil {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}
	cfg.UDPPort, err = sec.Key("udp_port").Int()
	if err != nil {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}
	cfg.PrivateIP, err = sec.Key("private_ip").Bool()
	if err != nil {
		return Config{}, &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}

	return cfg, nil
}

// Save writes cfg to path, overwriting any existing file.
func Save(path string, cfg Config) error {
	f := ini.Empty()
	sec, err := f.NewSection(section)
	if err != nil {
		return &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}
	sec.Key("nickname").SetValue(cfg.Nickname)
	sec.Key("password").SetValue(cfg.Password)
	sec.Key("tcp_port").SetValue(strconv.Itoa(cfg.TCPPort))
	sec.Key("udp_port").SetValue(strconv.Itoa(cfg.UDPPort))
	sec.Key("private_ip").SetValue(strconv.FormatBool(cfg.PrivateIP))
	if err := f.SaveTo(path); err != nil {
		return &errs.ConfigError{Kind: errs.WrongFile, Err: err}
	}
	return nil
}

// WrapRegisterFailure reinterprets a directory RegisterFailed error as a
// wrong-password configuration error when the stored credentials were the
// cause, so callers can re-prompt for a password instead of treating the
// peer as unregistered. Any other error passes through unchanged.
func WrapRegisterFailure(err error) error {
	var dirErr *errs.DirectoryError
	if ok := asDirectoryError(err, &dirErr); ok && dirErr.Kind == errs.RegisterFailed {
		return &errs.ConfigError{Kind: errs.WrongPassword, Err: err}
	}
	return err
}

func asDirectoryError(err error, target **errs.DirectoryError) bool {
	de, ok := err.(*errs.DirectoryError)
	if !ok {
		return false
	}
	*target = de
	return true
}

