package cli

import (
	"path/filepath"

	"github.com/IYouKnow/atlas-probe/internal/config"
	"github.com/IYouKnow/atlas-probe/internal/probe"
	"github.com/IYouKnow/atlas-probe/internal/tcpmsg"
	"github.com/IYouKnow/atlas-probe/internal/usage"
	"github.com/IYouKnow/atlas-probe/internal/volume"
	"github.com/IYouKnow/atlas-probe/pkg/user"
)

// newService wires the probe against the real host.
func newService(c config.Config) (*probe.Service, error) {
	tcpCfg, err := c.TCP.ClientConfig()
	if err != nil {
		return nil, err
	}
	dialer, err := c.TCP.Dialer()
	if err != nil {
		return nil, err
	}
	if dialer != nil {
		logger.Debug("dialing through SOCKS5 proxy", "proxy", c.TCP.SOCKS5)
	}

	return probe.New(
		usage.New(usage.OS(), c.Folder.Options(), logger),
		volume.NewReader(volume.System(), logger),
		tcpmsg.NewClient(dialer, tcpCfg, logger),
		logger,
	), nil
}

func getUserStore() (*user.Store, error) {
	configDir := cfg.ConfigDir
	if configDir == "" {
		configDir = "."
	}
	return user.NewStore(filepath.Join(configDir, "users.json"))
}
