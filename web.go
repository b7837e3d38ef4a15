package aggregio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const sessionName = "aggregio"

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiry       = "expiry"
	keyAthlete      = "athlete"
)

// ServerConfig carries the wiring for a Server.
type ServerConfig struct {
	OAuth    *oauth2.Config
	State    string
	Store    *Store
	BasePath string // mount path prefix, usually empty
	API      string // Strava API base, empty for production
}

// Server exposes the web routes over the aggregate manager and the Strava
// API. Handlers never surface raw remote failures; they log and fall back to
// a redirect or a partial page.
type Server struct {
	oauth   *oauth2.Config
	state   string
	manager *Manager
	base    string
	api     string
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		oauth:   cfg.OAuth,
		state:   cfg.State,
		manager: NewManager(cfg.Store),
		base:    cfg.BasePath,
		api:     cfg.API,
	}
}

// Register mounts all routes on the group.
func (s *Server) Register(g *echo.Group) {
	g.GET("/", s.home)
	g.GET("/auth/login", s.login)
	g.GET("/auth/callback", s.callback)
	g.GET("/auth/logout", s.logout)
	g.GET("/profile", s.profile)
	g.GET("/activities", s.activities)
	g.GET("/activities/:page", s.activities)
	g.GET("/activity/:id", s.activity)
	g.GET("/aggregates", s.aggregates)
	g.GET("/aggregates/new", s.newAggregate)
	g.GET("/aggregates/:id", s.viewAggregate)
	g.GET("/aggregates/:id/edit", s.editAggregate)
	g.POST("/aggregates/save", s.saveAggregate)
	g.POST("/aggregates/:id/delete", s.deleteAggregate)
}

func (s *Server) redirect(c echo.Context, path string) error {
	return c.Redirect(http.StatusFound, s.base+path)
}

// render injects the mount path so template links stay inside the base URL.
func (s *Server) render(c echo.Context, name string, data map[string]interface{}) error {
	data["Base"] = s.base
	return c.Render(http.StatusOK, name, data)
}

// token rebuilds the oauth token from the session, reporting false when the
// request is unauthenticated.
func (s *Server) token(c echo.Context) (*oauth2.Token, bool) {
	sess, err := session.Get(sessionName, c)
	if err != nil || sess == nil {
		return nil, false
	}
	access, ok := sess.Values[keyAccessToken].(string)
	if !ok || access == "" {
		return nil, false
	}
	t := &oauth2.Token{AccessToken: access}
	if refresh, ok := sess.Values[keyRefreshToken].(string); ok {
		t.RefreshToken = refresh
	}
	if exp, ok := sess.Values[keyExpiry].(int64); ok {
		t.Expiry = time.Unix(exp, 0)
	}
	return t, true
}

func (s *Server) athlete(c echo.Context) (*Athlete, bool) {
	sess, err := session.Get(sessionName, c)
	if err != nil || sess == nil {
		return nil, false
	}
	raw, ok := sess.Values[keyAthlete].(string)
	if !ok {
		return nil, false
	}
	var ath Athlete
	if err := json.Unmarshal([]byte(raw), &ath); err != nil {
		return nil, false
	}
	return &ath, true
}

// client builds a per-request Strava client bound to the session token.
func (s *Server) client(c echo.Context, t *oauth2.Token) *StravaClient {
	return NewStravaClient(s.oauth.Client(c.Request().Context(), t), s.api)
}

func (s *Server) home(c echo.Context) error {
	if _, ok := s.token(c); ok {
		return s.redirect(c, "/profile")
	}
	return s.render(c, "home.html", map[string]interface{}{
		"AuthURL": s.oauth.AuthCodeURL(s.state),
	})
}

func (s *Server) login(c echo.Context) error {
	return c.Redirect(http.StatusFound, s.oauth.AuthCodeURL(s.state))
}

func (s *Server) callback(c echo.Context) error {
	if state := c.QueryParam("state"); state != s.state {
		return echo.NewHTTPError(http.StatusBadRequest, "state invalid")
	}
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code not found")
	}
	token, err := s.oauth.Exchange(c.Request().Context(), code)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	ath, err := s.client(c, token).Athlete(c.Request().Context())
	if err != nil {
		log.Warn().Err(err).Msg("athlete")
		return s.redirect(c, "/")
	}
	sess, _ := session.Get(sessionName, c)
	if sess == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "no session")
	}
	sess.Options = &sessions.Options{Path: "/", MaxAge: 7 * 86400, HttpOnly: true}
	sess.Values[keyAccessToken] = token.AccessToken
	sess.Values[keyRefreshToken] = token.RefreshToken
	sess.Values[keyExpiry] = token.Expiry.Unix()
	raw, _ := json.Marshal(ath)
	sess.Values[keyAthlete] = string(raw)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	log.Info().Int64("athlete", ath.ID).Msg("authenticated")
	return s.redirect(c, "/profile")
}

func (s *Server) logout(c echo.Context) error {
	sess, _ := session.Get(sessionName, c)
	if sess != nil {
		sess.Options = &sessions.Options{Path: "/", MaxAge: -1}
		sess.Values = map[interface{}]interface{}{}
		_ = sess.Save(c.Request(), c.Response())
	}
	return s.redirect(c, "/")
}

func (s *Server) profile(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		fetched, err := s.client(c, t).Athlete(c.Request().Context())
		if err != nil {
			log.Warn().Err(err).Msg("profile")
			return s.redirect(c, "/")
		}
		ath = &fetched
		if sess, _ := session.Get(sessionName, c); sess != nil {
			raw, _ := json.Marshal(ath)
			sess.Values[keyAthlete] = string(raw)
			_ = sess.Save(c.Request(), c.Response())
		}
	}
	return s.render(c, "profile.html", map[string]interface{}{
		"Athlete": ath,
	})
}

// perPage sizes the activity grid to the reported viewport so a page fills
// the screen without scrolling, bounded to keep the remote request sane.
func perPage(width, height int) int {
	cols := (width - 40) / 340
	if cols < 1 {
		cols = 1
	}
	rows := (height - 220) / 240
	if rows < 1 {
		rows = 1
	}
	n := cols * rows
	if n < 2 {
		n = 2
	}
	if n > 24 {
		n = 24
	}
	return n
}

func (s *Server) activities(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	page := 1
	if p := c.Param("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	width, height := 1200, 800
	if n, err := strconv.Atoi(c.QueryParam("width")); err == nil && n > 0 {
		width = n
	}
	if n, err := strconv.Atoi(c.QueryParam("height")); err == nil && n > 0 {
		height = n
	}
	per := perPage(width, height)
	acts, err := s.client(c, t).Activities(c.Request().Context(), page, per)
	data := map[string]interface{}{
		"Activities": acts,
		"Page":       page,
		"PerPage":    per,
		"HasPrev":    page > 1,
		"HasNext":    err == nil && len(acts) == per,
		"NextPage":   page + 1,
		"PrevPage":   page - 1,
	}
	if err != nil {
		log.Warn().Err(err).Int("page", page).Msg("activities")
		data["Error"] = "Unable to load activities from Strava."
	}
	return s.render(c, "activities.html", data)
}

func (s *Server) activity(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return s.redirect(c, "/activities")
	}
	client := s.client(c, t)
	act, err := client.Activity(c.Request().Context(), id)
	if err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("activity")
		return s.redirect(c, "/activities")
	}
	// streams are best effort, the page renders without a map
	streams, err := client.Streams(c.Request().Context(), id, "latlng", "altitude", "time", "distance", "velocity_smooth")
	if err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("streams")
	}
	return s.render(c, "activity.html", map[string]interface{}{
		"Activity": act,
		"Streams":  streams,
	})
}

func (s *Server) aggregates(c echo.Context) error {
	if _, ok := s.token(c); !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		return s.redirect(c, "/profile")
	}
	return s.render(c, "aggregates.html", map[string]interface{}{
		"Aggregates": s.manager.List(ath.ID),
		"Notice":     c.QueryParam("notice"),
	})
}

func (s *Server) newAggregate(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	if _, ok := s.athlete(c); !ok {
		return s.redirect(c, "/profile")
	}
	pool := s.manager.BeginCreate(c.Request().Context(), s.client(c, t))
	return s.render(c, "aggregate_form.html", map[string]interface{}{
		"Activities": pool,
		"Aggregate":  (*Aggregate)(nil),
		"Selected":   map[int64]bool{},
		"Notice":     c.QueryParam("notice"),
	})
}

func (s *Server) editAggregate(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		return s.redirect(c, "/profile")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return s.redirect(c, "/aggregates")
	}
	agg, pool, err := s.manager.BeginEdit(c.Request().Context(), s.client(c, t), ath.ID, id)
	if err != nil {
		return s.redirect(c, "/aggregates")
	}
	selected := make(map[int64]bool, len(agg.Activities))
	for _, act := range agg.Activities {
		selected[act.ID] = true
	}
	return s.render(c, "aggregate_form.html", map[string]interface{}{
		"Activities": pool,
		"Aggregate":  &agg,
		"Selected":   selected,
		"Notice":     c.QueryParam("notice"),
	})
}

func (s *Server) saveAggregate(c echo.Context) error {
	t, ok := s.token(c)
	if !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		return s.redirect(c, "/profile")
	}

	var in SaveInput
	if v := c.FormValue("aggregate_id"); v != "" {
		in.ID, _ = strconv.ParseInt(v, 10, 64)
	}
	in.Name = c.FormValue("name")
	if form, err := c.FormParams(); err == nil {
		for _, v := range form["selected_activities"] {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			in.ActivityIDs = append(in.ActivityIDs, id)
		}
	}

	agg, skipped, err := s.manager.Save(c.Request().Context(), s.client(c, t), ath.ID, in)
	switch {
	case errors.Is(err, ErrValidation):
		target := "/aggregates/new"
		if in.ID != 0 {
			target = fmt.Sprintf("/aggregates/%d/edit", in.ID)
		}
		return s.redirect(c, target+"?notice="+url.QueryEscape("A name is required."))
	case err != nil:
		return s.redirect(c, "/aggregates")
	}
	log.Info().Int64("athlete", ath.ID).Int64("aggregate", agg.ID).Int("count", agg.Totals.Count).Msg("saved")
	if skipped > 0 {
		notice := fmt.Sprintf("%d activities could not be loaded and were left out.", skipped)
		return s.redirect(c, "/aggregates?notice="+url.QueryEscape(notice))
	}
	return s.redirect(c, "/aggregates")
}

func (s *Server) viewAggregate(c echo.Context) error {
	if _, ok := s.token(c); !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		return s.redirect(c, "/profile")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return s.redirect(c, "/aggregates")
	}
	agg, err := s.manager.View(ath.ID, id)
	if err != nil {
		return s.redirect(c, "/aggregates")
	}
	return s.render(c, "aggregate_detail.html", map[string]interface{}{
		"Aggregate": agg,
	})
}

func (s *Server) deleteAggregate(c echo.Context) error {
	if _, ok := s.token(c); !ok {
		return s.redirect(c, "/")
	}
	ath, ok := s.athlete(c)
	if !ok {
		return s.redirect(c, "/profile")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return s.redirect(c, "/aggregates")
	}
	s.manager.Delete(ath.ID, id)
	return s.redirect(c, "/aggregates")
}
