package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/dragondelay/pkg/config"
	"github.com/tauraamui/dragondelay/pkg/configdef"
	"github.com/tauraamui/dragondelay/pkg/dragon"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/video/videobackend"
	"gocv.io/x/gocv"
)

const (
	name        = "dragon_delay"
	description = "Dragon service daemon which replays a camera feed after a configurable delay"
)

type Service struct {
	daemon.Daemon
}

// Setup writes the default config file
func (service *Service) Setup() (string, error) {
	log.Info("Setting up dragondelay service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for dragondelay service...")
	err := config.DefaultDestroyer().Destroy()
	if err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: dragondelay setup | remove-setup | install | remove | start | stop | status"

	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting dragon delay...")

	server, err := dragon.NewServer(config.DefaultResolver(), videobackend.Resolve(os.Getenv("DRAGON_VIDEO_BACKEND")))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Error(err.Error())
	}

	if err := config.Watch(ctx, 0, server.ApplyConfig); err != nil {
		log.Warn("Live config reload unavailable: %v", err)
	}

	quit := make(chan struct{})
	restoreTerminal := listenForKeys(server, quit)
	defer restoreTerminal()

	select {
	case killSignal := <-interrupt:
		fmt.Print("\r")
		log.Error("Received signal: %s", killSignal)
	case <-quit:
		log.Info("Quit requested from keyboard")
	}

	cancel()
	log.Info("Shutting down server...")
	<-server.Shutdown()

	if logging.CurrentLoggingLevel == logging.DebugLevel {
		var b bytes.Buffer
		gocv.MatProfile.WriteTo(&b, 1)
		fmt.Print(b.String())
	}

	return "Shutdown successful... BYE! 👋", nil
}

func init() {
	log.SetLevel(os.Getenv("DRAGON_LOGGING_LEVEL"))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
