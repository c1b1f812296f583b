package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"staffcal/internal/board"
	"staffcal/internal/config"
	"staffcal/internal/lanes"
	appLog "staffcal/internal/log"
	"staffcal/internal/metrics"
	"staffcal/internal/minutes"
	"staffcal/internal/schedule"
)

const (
	boardCacheTTL    = 30 * time.Second
	maxBoardDays     = 31
	maxLayoutBody    = 1 << 20
	maxLayoutItems   = 5000
	readHeaderTimout = 10 * time.Second

	// POST /api/refresh budget.
	refreshEvery = 10 * time.Second
	refreshBurst = 3
)

// layoutJSON keeps numeric ids and times as json.Number so large record
// ids come back digit for digit.
var layoutJSON = sonic.Config{UseNumber: true}.Froze()

// Refresher is the part of schedule.Refresher the server triggers.
type Refresher interface {
	Refresh(ctx context.Context) (schedule.Snapshot, error)
}

// Server provides the HTTP API for staff boards and the lane layout engine.
type Server struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	store     *schedule.Store
	refresher Refresher
	router    chi.Router

	// Board responses keyed by request and snapshot version. Entries for an
	// older version are never served.
	boardMu    sync.Mutex
	boardCache map[boardKey]boardEntry

	months board.MonthCache

	refreshLimit *rate.Limiter
}

type boardKey struct {
	date    string
	days    int
	version uint64
}

type boardEntry struct {
	resp      boardResponse
	updatedAt time.Time
}

// NewServer constructs a new Server. refresher may be nil, in which case
// POST /api/refresh answers 503.
func NewServer(cfg *config.Config, store *schedule.Store, refresher Refresher) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		refresher:  refresher,
		boardCache: make(map[boardKey]boardEntry),

		refreshLimit: rate.NewLimiter(rate.Every(refreshEvery), refreshBurst),
	}
	s.router = s.routes()
	return s
}

// SetConfig swaps the config after a reload and drops cached boards.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	s.boardMu.Lock()
	s.boardCache = make(map[boardKey]boardEntry)
	s.boardMu.Unlock()
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Handle("/metrics", metrics.Handler())
		r.Route("/api", func(r chi.Router) {
			r.Get("/staff", s.handleStaff)
			r.Get("/board", s.handleBoard)
			r.Get("/month", s.handleMonth)
			r.Post("/layout", s.handleLayout)
			r.Post("/refresh", s.handleRefresh)
		})
	})
	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	listen := s.config().Listen
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(started).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuth enforces HTTP Basic Auth when credentials are configured.
// Empty username or password leaves the API open.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ba := s.config().BasicAuth
		if ba == nil || ba.Username == "" || ba.Password == "" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !secureCompare(p, ba.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="StaffCal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleLayout runs the lane engine on posted intervals.
//
// POST /api/layout
//
//	{"intervals": [{"id": "a", "start": "9:00am", "end": "2025-10-29T10:00:00+05:30"}, ...]}
//
// Times are read in the configured timezone.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLayoutBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxLayoutBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	var req layoutRequest
	if err := layoutJSON.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Intervals) > maxLayoutItems {
		writeError(w, http.StatusRequestEntityTooLarge, "too many intervals")
		return
	}

	parser := minutes.Parser{Location: s.config().Location()}
	assignments, err := lanes.ComputeRaw(req.Intervals, parser)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := layoutResponse{Assignments: assignments}
	gutter := s.config().Board.Gutter
	if req.Gutter != nil {
		gutter = *req.Gutter
	}
	resp.Placements = make([]layoutPlacement, len(assignments))
	for i, a := range assignments {
		leftPct, widthPct, left, width := board.Position(a, gutter)
		resp.Placements[i] = layoutPlacement{
			ID:       a.ID,
			LeftPct:  leftPct,
			WidthPct: widthPct,
			Left:     left,
			Width:    width,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStaff lists the active staff in board order.
func (s *Server) handleStaff(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.store.Current()
	team := board.Team(s.config().StaffMembers(), snap.Meetings)
	writeJSON(w, http.StatusOK, staffResponse{Staff: team})
}

// handleBoard returns day boards from the current snapshot.
//
// GET /api/board?date=2025-10-29&days=7
//   - date: first day (default today in the configured timezone)
//   - days: number of consecutive days (default 1, max 31)
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	loc := cfg.Location()

	q := r.URL.Query()
	day := time.Now().In(loc)
	if v := q.Get("date"); v != "" {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}
	days := parseIntDefault(q.Get("days"), 1)
	if days < 1 || days > maxBoardDays {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 31")
		return
	}

	snap, ok := s.store.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no meeting snapshot yet")
		return
	}

	key := boardKey{date: day.Format(time.DateOnly), days: days, version: snap.Version}
	now := time.Now()

	s.boardMu.Lock()
	entry, hit := s.boardCache[key]
	s.boardMu.Unlock()
	if hit && now.Sub(entry.updatedAt) < boardCacheTTL {
		writeJSON(w, http.StatusOK, entry.resp)
		return
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, days)
	meetings := snap.Between(from, to)

	opts := board.Options{
		Location:   loc,
		RowHeight:  cfg.Board.RowHeight,
		Gutter:     cfg.Board.Gutter,
		ShowAllDay: cfg.ShowAllDay,
	}
	team := board.Team(cfg.StaffMembers(), meetings)

	resp := boardResponse{
		Days:            board.Range(from, days, team, meetings, opts),
		SnapshotVersion: snap.Version,
		UpdatedAt:       snap.UpdatedAt,
		DisplayTimeZone: loc.String(),
		WeekStart:       cfg.WeekStart,
	}

	s.boardMu.Lock()
	for k, e := range s.boardCache {
		if k.version != snap.Version || now.Sub(e.updatedAt) >= boardCacheTTL {
			delete(s.boardCache, k)
		}
	}
	s.boardCache[key] = boardEntry{resp: resp, updatedAt: now}
	s.boardMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleMonth returns the 6x7 date grid for a month view.
//
// GET /api/month?year=2025&month=10 (default: current month)
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	loc := cfg.Location()
	now := time.Now().In(loc)

	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	grid := s.months.Grid(year, time.Month(month), cfg.FirstWeekday(), loc)
	weeks := make([][]string, len(grid))
	for i, week := range grid {
		weeks[i] = make([]string, len(week))
		for j, d := range week {
			weeks[i][j] = d.Format(time.DateOnly)
		}
	}
	writeJSON(w, http.StatusOK, monthResponse{Year: year, Month: month, WeekStart: cfg.WeekStart, Weeks: weeks})
}

// handleRefresh pulls meetings right away instead of waiting for cron.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	if !s.refreshLimit.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(int(refreshEvery/time.Second)))
		writeError(w, http.StatusTooManyRequests, "refresh rate limited")
		return
	}

	snap, err := s.refresher.Refresh(r.Context())
	resp := refreshResponse{
		SnapshotVersion: snap.Version,
		Meetings:        len(snap.Meetings),
		UpdatedAt:       snap.UpdatedAt,
	}
	if err != nil {
		resp.Error = err.Error()
		if snap.Version == 0 {
			writeJSON(w, http.StatusBadGateway, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		appLog.Error("failed to encode JSON response", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
