package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"main/internal/auth"
	"main/internal/session"
	"main/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const claimsContextKey = "claims"

// Options wires the hub server with its collaborators.
type Options struct {
	Addr           string
	Users          storage.UserStore
	Tokens         *auth.Manager
	Manager        *Manager
	DisableReqLogs bool
}

// Server exposes the hub over HTTP: login, the websocket upgrade endpoint
// and the admin/engine notification triggers.
type Server struct {
	opts     Options
	app      *echo.Echo
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	timetable []byte
}

func NewServer(opts Options) (*Server, error) {
	if opts.Users == nil {
		return nil, errors.New("hub: nil user store")
	}
	if opts.Tokens == nil {
		return nil, errors.New("hub: nil token manager")
	}
	if opts.Manager == nil {
		return nil, errors.New("hub: nil connection manager")
	}

	s := &Server{
		opts: opts,
		app:  echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.setup()
	return s, nil
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.Recover())

	s.app.POST("/api/auth/login", s.login)
	s.app.POST("/api/auth/logout", s.logout, s.requireToken(""))
	s.app.GET("/api/timetable", s.getTimetable, s.requireToken(""))
	s.app.GET("/ws/:subjectType/:subjectID", s.serveWs)

	admin := s.app.Group("/api/admin", s.requireToken(session.SubjectAdmin))
	admin.GET("/stats", s.stats)
	admin.POST("/timetable", s.putTimetable)
	admin.POST("/notify/maintenance", s.notifyMaintenance)
	admin.POST("/notify/generation", s.notifyGeneration)
	admin.POST("/notify/emergency", s.notifyEmergency)

	engine := s.app.Group("/api/engine", s.requireToken(session.SubjectAdmin))
	engine.POST("/progress", s.engineProgress)
}

func (s *Server) Start() error {
	return s.app.Start(s.opts.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// ServeHTTP lets tests drive the server without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	SubjectType string `json:"user_type"`
	SubjectID   string `json:"user_id"`
	FullName    string `json:"full_name"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	user, err := s.opts.Users.FindByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !user.Active {
		return echo.NewHTTPError(http.StatusUnauthorized, "account disabled")
	}
	if err := auth.CheckPassword(req.Password, user.HashedPassword); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, err := s.opts.Tokens.Issue(user.SubjectID(), user.Subject(), user.FullName)
	if err != nil {
		logs.Errorf("issue token for %s, err: %+v", req.Email, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "token issue failed")
	}

	return c.JSON(http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		SubjectType: string(user.Subject()),
		SubjectID:   user.SubjectID(),
		FullName:    user.FullName,
	})
}

func (s *Server) logout(c echo.Context) error {
	// tokens are stateless; the client clears its stored session
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getTimetable(c echo.Context) error {
	s.mu.RLock()
	doc := s.timetable
	s.mu.RUnlock()

	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no timetable published")
	}
	return c.JSONBlob(http.StatusOK, doc)
}

type putTimetableRequest struct {
	Timetable       json.RawMessage `json:"timetable"`
	AffectedBatches []string        `json:"affected_batches"`
}

func (s *Server) putTimetable(c echo.Context) error {
	var req putTimetableRequest
	if err := c.Bind(&req); err != nil || len(req.Timetable) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	s.timetable = req.Timetable
	s.mu.Unlock()

	s.opts.Manager.NotifyTimetableUpdate(req.AffectedBatches)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.opts.Manager.Stats())
}

type maintenanceRequest struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (s *Server) notifyMaintenance(c echo.Context) error {
	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.opts.Manager.NotifySystemMaintenance(req.Message, req.Details)
	return c.NoContent(http.StatusNoContent)
}

type generationRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) notifyGeneration(c echo.Context) error {
	var req generationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch req.Status {
	case "complete":
		s.opts.Manager.NotifyGenerationComplete(req.Message)
	case "error":
		s.opts.Manager.NotifyGenerationError(req.Message)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be complete or error")
	}
	return c.NoContent(http.StatusNoContent)
}

type emergencyRequest struct {
	Message string `json:"message"`
}

func (s *Server) notifyEmergency(c echo.Context) error {
	var req emergencyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.opts.Manager.NotifyEmergencyUpdate(req.Message)
	return c.NoContent(http.StatusNoContent)
}

type progressRequest struct {
	Progress   int     `json:"progress"`
	Generation int     `json:"generation"`
	Fitness    float64 `json:"fitness"`
}

func (s *Server) engineProgress(c echo.Context) error {
	var req progressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s.opts.Manager.NotifyOptimizationProgress(req.Progress, req.Generation, req.Fitness)
	return c.NoContent(http.StatusNoContent)
}

// serveWs authenticates the upgrade request, binds the connection into the
// registry and pumps inbound messages until the peer goes away.
func (s *Server) serveWs(c echo.Context) error {
	subjectType := session.SubjectType(c.Param("subjectType"))
	subjectID := c.Param("subjectID")
	if !subjectType.IsAvailable() || subjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid realtime endpoint")
	}

	token := bearerToken(c)
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	if _, err := s.opts.Tokens.VerifyFor(token, subjectType, subjectID); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "token does not match endpoint")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrade websocket")
	}

	registered := s.opts.Manager.Register(subjectType, subjectID, wsLink{conn: conn})
	defer s.opts.Manager.Unregister(registered)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Warnf("read from %s:%s, err: %+v", subjectType, subjectID, err)
			}
			return nil
		}
		s.opts.Manager.HandleInbound(registered, data)
	}
}

// bearerToken pulls the access token from the Authorization header or,
// for websocket upgrades from browsers, the token query parameter.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.QueryParam("token")
}

// requireToken guards a route with token verification; a non-empty subject
// type additionally restricts the audience.
func (s *Server) requireToken(subjectType session.SubjectType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			claims, err := s.opts.Tokens.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if subjectType != "" && claims.SubjectType != string(subjectType) {
				return echo.NewHTTPError(http.StatusForbidden, "operation requires "+string(subjectType)+" privileges")
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// wsLink adapts a gorilla connection to the manager's link interface.
type wsLink struct {
	conn *websocket.Conn
}

func (l wsLink) WriteMessage(data []byte) error {
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l wsLink) Close() error {
	return l.conn.Close()
}
