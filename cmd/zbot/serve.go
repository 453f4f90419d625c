package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/willothy/khacks-0.3/pkg/server"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

type ServeCommand struct {
	Listen string `short:"l" long:"listen" description:"Listen address (default from config)"`
}

func (c *ServeCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := mustConnect(ctx, false)
	defer s.Close()

	walkCfg, err := s.cfg.WalkConfig()
	if err != nil {
		return err
	}
	runner := walk.NewRunner(s.robot, nil, s.logger)
	defer runner.Stop()

	addr := c.Listen
	if addr == "" {
		addr = s.cfg.Admin.Listen
	}
	fmt.Printf("Admin API on %s\n", headerStyle.Render(addr))

	return server.New(s.robot, runner, walkCfg, s.logger).ListenAndServe(ctx, addr)
}
