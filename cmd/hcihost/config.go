package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/cmd"
	"github.com/rigado/blehci/linux/hci/privacy"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

// Config is the hcihost configuration. It is read from an optional YAML file; command line
// flags override file values.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Privacy   PrivacyConfig   `yaml:"privacy"`

	VendorCommands []string      `yaml:"vendorCommands"`
	Capture        string        `yaml:"capture"`
	Keystore       string        `yaml:"keystore"`
	CommandTimeout time.Duration `yaml:"commandTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	Debug          bool          `yaml:"debug"`
}

type TransportConfig struct {
	Socket      string        `yaml:"socket"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	UART        string        `yaml:"uart"`
	Baud        uint          `yaml:"baud"`
}

type PrivacyConfig struct {
	Policy        privacy.Policy  `yaml:"policy"`
	StaticAddress *blehci.Address `yaml:"staticAddress"`
	IRK           *blehci.Key     `yaml:"irk"`
	MinInterval   time.Duration   `yaml:"minInterval"`
	MaxInterval   time.Duration   `yaml:"maxInterval"`
}

func defaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			DialTimeout: 5 * time.Second,
			Baud:        1000000,
		},
		Privacy: PrivacyConfig{
			Policy:      privacy.UseResolvableAddress,
			MinInterval: 7 * time.Minute,
			MaxInterval: 15 * time.Minute,
		},
		Keystore:       "hcihost-identity.json",
		CommandTimeout: 3 * time.Second,
		ReadTimeout:    time.Second,
	}
}

// loadConfig returns the defaults overlaid with the YAML file at path, if any.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "can't read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config %s", path)
	}
	return cfg, nil
}

var flags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
	cli.StringFlag{Name: "socket", Usage: "H4 over TCP, host:port"},
	cli.DurationFlag{Name: "dial-timeout", Usage: "connect timeout for --socket"},
	cli.StringFlag{Name: "uart", Usage: "H4 over UART, device path"},
	cli.UintFlag{Name: "baud", Usage: "UART baud rate"},
	cli.StringSliceFlag{Name: "vendor-command", Usage: "vendor command OCF[:PARAMS] in hex, sent after reset; repeatable"},
	cli.StringFlag{Name: "capture", Usage: "write a pcap capture of all frames to this file"},
	cli.StringFlag{Name: "keystore", Usage: "identity store file"},
	cli.StringFlag{Name: "policy", Usage: "address policy: public, static, nrpa or rpa"},
	cli.StringFlag{Name: "static-address", Usage: "static random address for --policy static"},
	cli.StringFlag{Name: "irk", Usage: "identity resolving key, 32 hex digits"},
	cli.DurationFlag{Name: "min-interval", Usage: "minimum address rotation interval"},
	cli.DurationFlag{Name: "max-interval", Usage: "maximum address rotation interval"},
	cli.DurationFlag{Name: "command-timeout", Usage: "HCI command timeout"},
	cli.DurationFlag{Name: "read-timeout", Usage: "bound on reading the rest of a partial frame"},
	cli.BoolFlag{Name: "debug", Usage: "enable trace logging"},
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(c *cli.Context, cfg *Config) error {
	if c.IsSet("socket") {
		cfg.Transport.Socket = c.String("socket")
		cfg.Transport.UART = ""
	}
	if c.IsSet("dial-timeout") {
		cfg.Transport.DialTimeout = c.Duration("dial-timeout")
	}
	if c.IsSet("uart") {
		cfg.Transport.UART = c.String("uart")
		cfg.Transport.Socket = ""
	}
	if c.IsSet("baud") {
		cfg.Transport.Baud = c.Uint("baud")
	}
	if c.IsSet("vendor-command") {
		cfg.VendorCommands = c.StringSlice("vendor-command")
	}
	if c.IsSet("capture") {
		cfg.Capture = c.String("capture")
	}
	if c.IsSet("keystore") {
		cfg.Keystore = c.String("keystore")
	}
	if c.IsSet("policy") {
		if err := cfg.Privacy.Policy.UnmarshalText([]byte(c.String("policy"))); err != nil {
			return err
		}
	}
	if c.IsSet("static-address") {
		a, err := blehci.ParseAddress(c.String("static-address"))
		if err != nil {
			return err
		}
		cfg.Privacy.StaticAddress = &a
	}
	if c.IsSet("irk") {
		k, err := blehci.ParseKey(c.String("irk"))
		if err != nil {
			return err
		}
		cfg.Privacy.IRK = &k
	}
	if c.IsSet("min-interval") {
		cfg.Privacy.MinInterval = c.Duration("min-interval")
	}
	if c.IsSet("max-interval") {
		cfg.Privacy.MaxInterval = c.Duration("max-interval")
	}
	if c.IsSet("command-timeout") {
		cfg.CommandTimeout = c.Duration("command-timeout")
	}
	if c.IsSet("read-timeout") {
		cfg.ReadTimeout = c.Duration("read-timeout")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	return nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Transport.Socket == "" && cfg.Transport.UART == "":
		return errors.New("no transport: set socket or uart")
	case cfg.Transport.Socket != "" && cfg.Transport.UART != "":
		return errors.New("socket and uart are mutually exclusive")
	case cfg.Keystore == "":
		return errors.New("no keystore file")
	}

	if _, err := cfg.vendorCommands(); err != nil {
		return err
	}

	switch cfg.Privacy.Policy {
	case privacy.UsePublicAddress, privacy.UseStaticAddress:
	case privacy.UseNonResolvableAddress, privacy.UseResolvableAddress:
		if cfg.Privacy.MinInterval <= 0 || cfg.Privacy.MinInterval > cfg.Privacy.MaxInterval {
			return errors.Errorf("invalid rotation interval [%v, %v)", cfg.Privacy.MinInterval, cfg.Privacy.MaxInterval)
		}
	default:
		return errors.Errorf("invalid policy %v", cfg.Privacy.Policy)
	}
	return nil
}

func (cfg Config) vendorCommands() ([]*cmd.Vendor, error) {
	var cmds []*cmd.Vendor
	for _, s := range cfg.VendorCommands {
		c, err := cmd.ParseVendor(s)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// deviceOptions translates cfg into HCI host options.
func (cfg Config) deviceOptions(onError func(error)) []blehci.Option {
	opts := []blehci.Option{
		blehci.OptCommandTimeout(cfg.CommandTimeout),
		blehci.OptReadTimeout(cfg.ReadTimeout),
		blehci.OptErrorHandler(onError),
	}
	if cfg.Transport.UART != "" {
		opts = append(opts, blehci.OptTransportH4Uart(cfg.Transport.UART, cfg.Transport.Baud))
	} else {
		opts = append(opts, blehci.OptTransportH4Socket(cfg.Transport.Socket, cfg.Transport.DialTimeout))
	}
	if cfg.Capture != "" {
		opts = append(opts, blehci.OptCaptureFile(cfg.Capture))
	}
	return opts
}
