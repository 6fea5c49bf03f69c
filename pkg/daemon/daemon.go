package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/config"
	"github.com/charlie0129/curtain/pkg/events"
	"github.com/charlie0129/curtain/pkg/position"
)

var (
	conf      *config.Config
	store     *position.Store
	devices   = newDeviceSet()
	schedules *Schedules
	sseHub    = events.NewHub()
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", getConfig)
	router.GET("/devices", getDevices)
	router.GET("/devices/:name", getDevice)
	router.PUT("/devices/:name/target", setTarget)
	router.PUT("/devices/:name/stop", stopDevice)
	router.GET("/positions", getPositions)
	router.GET("/schedules", getSchedules)
	router.GET("/events", streamEvents)

	// Kept for the REST bridge plugin, which only knows one curtain.
	router.GET("/state", getLegacyState)
	router.PUT("/set_pos", setLegacyPos)
	router.PUT("/set_pos/:pos", setLegacyPosParam)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	var err error
	conf, err = config.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	store = position.NewStore(conf.StateFile)

	for _, dc := range conf.Devices {
		d, err := openDevice(conf, dc, store)
		if err != nil {
			devices.close()
			logrus.Fatalf("failed to set up device %s: %v", dc.Name, err)
		}
		devices.add(d)
	}

	schedules, err = NewSchedules(conf.Schedules, devices.get)
	if err != nil {
		devices.close()
		logrus.Fatalf("failed to set up schedules: %v", err)
	}

	router := setupRoutes()
	srv := &http.Server{
		Handler: router,
	}

	// A socket left behind by a crashed daemon would make Listen fail.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		_ = os.Remove(unixSocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	var tcpSrv *http.Server
	if conf.HTTPListen != "" {
		tcpSrv = &http.Server{
			Addr:              conf.HTTPListen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logrus.Infof("http server listening on %s", conf.HTTPListen)
			if err := tcpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatal(err)
			}
		}()
	}

	// Each device waits for its own readiness handshake, so a device that
	// is still booting does not hold up the others.
	loopCtx, stopLoops := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	for _, ctrl := range devices.controllers() {
		wg.Add(1)
		go func(ctrl *Controller) {
			defer wg.Done()
			logrus.WithField("device", ctrl.Name()).Debug("control loop starts")
			if err := ctrl.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithField("device", ctrl.Name()).Errorf("control loop exited: %v", err)
			}
		}(ctrl)
	}

	schedules.Start()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	if tcpSrv != nil {
		if err := tcpSrv.Shutdown(ctx); err != nil {
			logrus.Errorf("failed to shutdown http server: %v", err)
		}
	}
	cancel()

	logrus.Info("stopping schedules")
	<-schedules.Stop().Done()

	logrus.Info("stopping motion")
	for _, ctrl := range devices.controllers() {
		ctrl.Stop()
	}
	// A burst already on the wire is still awaited and counted.
	stopLoops()
	wg.Wait()

	logrus.Info("closing serial ports")
	devices.close()

	logrus.Info("exiting")
	return nil
}
