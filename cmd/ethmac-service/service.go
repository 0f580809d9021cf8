package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ethmac/ethmac"
	"github.com/ethmac/ethmac/config"
	"github.com/ethmac/ethmac/util"
	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

var logger service.Logger

type program struct {
	configPath string
	configTest bool
	build      string
	control    *ethmac.Control
	cancel     context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	// Start should not block.
	logger.Info("ethmac service starting.")

	l := logrus.New()
	hookLogger(l)

	c := config.NewC(l)
	if err := c.Load(p.configPath); err != nil {
		return fmt.Errorf("failed to load config: %s", err)
	}

	ctrl, err := ethmac.Main(c, p.configTest, p.build, l)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		return err
	}
	if ctrl == nil {
		return nil
	}

	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	c.CatchHUP(ctx)

	p.control = ctrl
	p.control.Start()
	return nil
}

func (p *program) Stop(s service.Service) error {
	logger.Info("ethmac service stopping.")
	if p.cancel != nil {
		p.cancel()
	}
	if p.control != nil {
		p.control.Stop()
	}
	return nil
}

func doService(configPath string, configTest bool, build string, action string) error {
	if configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			return err
		}
		configPath = filepath.Join(filepath.Dir(ex), "config.yml")
	}

	svcConfig := &service.Config{
		Name:        "ethmac",
		DisplayName: "ethmac Ethernet Driver",
		Description: "Simulated Ethernet MAC with an IPv4 stack, echo and DNS services",
		Arguments:   []string{"-service", "run", "-config", configPath},
	}

	prg := &program{
		configPath: configPath,
		configTest: configTest,
		build:      build,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return err
	}

	errs := make(chan error, 5)
	logger, err = s.Logger(errs)
	if err != nil {
		return err
	}

	go func() {
		for err := range errs {
			if err != nil {
				log.Print(err)
			}
		}
	}()

	if action == "run" {
		return s.Run()
	}

	if err := service.Control(s, action); err != nil {
		return errors.Join(err, fmt.Errorf("valid actions: %q", service.ControlAction))
	}
	return nil
}
