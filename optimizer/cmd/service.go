package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"go.ntppool.org/cdnopt/service"
)

type installCmd struct {
	Name        string `default:"cdnopt" help:"Service name"`
	DisplayName string `name:"display-name" default:"CDN address optimizer" help:"Service display name"`
}

func (cmd *installCmd) Run(root *CdnoptCmd) error {
	// services start in the system directory, so the config path must
	// be absolute and valid now rather than at the first start
	cfgPath, err := filepath.Abs(root.ConfigFile)
	if err != nil {
		return err
	}
	root.ConfigFile = cfgPath
	if _, err := root.LoadConfig(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"--config", cfgPath}
	if root.Debug {
		args = append(args, "--debug")
	}
	args = append(args, "run", "--service-name", cmd.Name)

	if err := service.Install(cmd.Name, cmd.DisplayName, exe, args...); err != nil {
		return err
	}
	fmt.Printf("installed service %s\n", cmd.Name)
	return nil
}

type uninstallCmd struct {
	Name string `default:"cdnopt" help:"Service name"`
}

func (cmd *uninstallCmd) Run() error {
	if err := service.Uninstall(cmd.Name); err != nil {
		return err
	}
	fmt.Printf("removed service %s\n", cmd.Name)
	return nil
}
