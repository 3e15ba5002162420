package webbridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ghostshell/internal/domain"
	"ghostshell/internal/host"
)

// Host is the subset of the application context exposed over HTTP.
type Host interface {
	ShowWindow()
	HideWindow()
	GhostConfig() domain.GhostConfig
	CheckStatus(ctx context.Context) domain.NetworkStatus
	RunOSCommand(ctx context.Context, identifier string) (domain.OSCommandResult, error)
	RecentLogs() []domain.LogEntry
}

// LogSource pushes every new log entry.
type LogSource interface {
	Subscribe(fn func(domain.LogEntry)) func()
}

type osCommandRequest struct {
	Command string `json:"command"`
}

// Server is the browser-facing bridge used when the UI runs outside the
// desktop shell.
type Server struct {
	host        Host
	echo        *echo.Echo
	hub         *hub
	upgrader    websocket.Upgrader
	unsubscribe func()
}

// New builds the bridge. Browsers may reach it from the bridge's own host
// or from one of allowedOrigins; every other Origin is refused.
func New(h Host, logs LogSource, allowedOrigins []string) *Server {
	origins := newOriginPolicy(allowedOrigins)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Error("Web request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "err", v.Error)
				return nil
			}
			slog.Debug("Web request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(origins.middleware)
	if list := origins.list(); len(list) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: list,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderContentType},
		}))
	}

	s := &Server{
		host: h,
		echo: e,
		hub:  newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     origins.check,
		},
	}
	s.routes()

	if logs != nil {
		s.unsubscribe = logs.Subscribe(func(entry domain.LogEntry) {
			s.hub.broadcast(Message{Channel: channelLogData, Payload: entry})
		})
	}
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := s.echo.Group("/api")
	api.GET("/config", s.config)
	api.GET("/status", s.status)
	api.POST("/os-command", s.osCommand)
	api.POST("/window/show", s.showWindow)
	api.POST("/window/hide", s.hideWindow)
	api.GET("/logs", s.logs)
	api.GET("/events", s.events)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	slog.Info("Web bridge listening", "addr", addr)

	select {
	case err := <-errCh:
		s.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.closeAll()
}

func (s *Server) VoiceStateChanged(state domain.VoiceState, reason domain.VoiceStateReason) {
	s.hub.broadcast(Message{Channel: channelVoiceState, Payload: map[string]string{
		"state":  string(state),
		"reason": string(reason),
	}})
}

func (s *Server) LiveTranscript(text string) {
	s.hub.broadcast(Message{Channel: channelLiveTranscript, Payload: text})
}

func (s *Server) OSCommandResult(result domain.OSCommandResult) {
	s.hub.broadcast(Message{Channel: channelOSCommandResult, Payload: result})
}

func (s *Server) NetworkStatusChanged(status domain.NetworkStatus) {
	s.hub.broadcast(Message{Channel: channelGhostStatus, Payload: status})
}

func (s *Server) config(c echo.Context) error {
	return c.JSON(http.StatusOK, s.host.GhostConfig())
}

func (s *Server) status(c echo.Context) error {
	status := s.host.CheckStatus(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]domain.NetworkStatus{"status": status})
}

func (s *Server) osCommand(c echo.Context) error {
	var req osCommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}

	result, err := s.host.RunOSCommand(c.Request().Context(), command)
	if err != nil {
		if errors.Is(err, host.ErrResultTimeout) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		}
		return err
	}
	s.OSCommandResult(result)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) showWindow(c echo.Context) error {
	s.host.ShowWindow()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) hideWindow(c echo.Context) error {
	s.host.HideWindow()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) logs(c echo.Context) error {
	logs := s.host.RecentLogs()
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	return c.JSON(http.StatusOK, logs)
}

// events streams every broadcast message to one websocket client.
func (s *Server) events(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	cl := s.hub.add(conn)
	go writeLoop(cl)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(cl)
	return nil
}
