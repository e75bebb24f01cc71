package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/listing"
	"github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/match"
	"github.com/spigell/career-match/internal/query"
	"github.com/spigell/career-match/internal/search"
)

type interpretRequest struct {
	Query string `json:"query"`
}

type scoreRequest struct {
	RequiredSkills  []string  `json:"requiredSkills"`
	PreferredSkills []string  `json:"preferredSkills"`
	CandidateSkills *[]string `json:"candidateSkills"`
	Discipline      string    `json:"discipline"`
	Disciplines     []string  `json:"disciplines"`
}

type scoreResponse struct {
	match.Result
	Badges []match.Badge `json:"badges"`
}

type rankRequest struct {
	CandidateSkills *[]string          `json:"candidateSkills"`
	Discipline      string             `json:"discipline"`
	Listings        []*listing.Listing `json:"listings"`
}

type rankResponse struct {
	Buckets match.Buckets[*listing.Listing] `json:"buckets"`
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Policy  query.Policy `json:"interpreterPolicy"`
	Chat    bool         `json:"chat"`
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.version,
		Policy:  s.search.Interpreter().Policy(),
		Chat:    s.chat != nil,
	})
}

func (s *Server) interpret(c *gin.Context) {
	var req interpretRequest
	if !s.bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, s.search.Interpreter().Interpret(req.Query))
}

func (s *Server) score(c *gin.Context) {
	var req scoreRequest
	if !s.bind(c, &req) {
		return
	}

	candidate := match.Candidate{Skills: match.UnknownSkills(), Discipline: req.Discipline}
	if req.CandidateSkills != nil {
		candidate.Skills = match.NewSkills(*req.CandidateSkills...)
	}

	result := s.search.Scorer().Score(match.Requirements{
		Required:    req.RequiredSkills,
		Preferred:   req.PreferredSkills,
		Disciplines: req.Disciplines,
	}, candidate)

	c.JSON(http.StatusOK, scoreResponse{Result: result, Badges: result.Badges()})
}

func (s *Server) rank(c *gin.Context) {
	var req rankRequest
	if !s.bind(c, &req) {
		return
	}

	candidate := match.Candidate{Skills: match.UnknownSkills(), Discipline: req.Discipline}
	if req.CandidateSkills != nil {
		candidate.Skills = match.NewSkills(*req.CandidateSkills...)
	}

	entries := search.Score(s.search.Scorer(), req.Listings, candidate)
	buckets := match.Bucketize(entries, s.search.Scorer().HighMatch(), func(l *listing.Listing) bool {
		return l.Applied
	})

	c.JSON(http.StatusOK, rankResponse{Buckets: buckets})
}

func (s *Server) searchListings(c *gin.Context) {
	var req search.Request
	if !s.bind(c, &req) {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.search.Search(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// sessionFrom returns the canonical session id of the request, empty when
// the client starts a new session.
func sessionFrom(c *gin.Context, msg chat.Message) (string, error) {
	id := strings.TrimSpace(msg.SessionID)
	if id == "" {
		id = strings.TrimSpace(c.GetHeader(chat.SessionHeader))
	}
	if id == "" {
		return "", nil
	}
	return chat.ParseSessionID(id)
}

func (s *Server) chatReply(c *gin.Context) {
	var msg chat.Message
	if !s.bind(c, &msg) {
		return
	}

	session, err := sessionFrom(c, msg)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	session, reply, err := s.chat.Reply(ctx, session, msg.Message)
	if session != "" {
		c.Header(chat.SessionHeader, session)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, chat.Answer{SessionID: session, Reply: reply})
}

// chatStream writes the reply as "data: <chunk>" lines closed by
// "data: [DONE]". A failure after the first chunk is reported in-stream
// and the terminator is left out.
func (s *Server) chatStream(c *gin.Context) {
	var msg chat.Message
	if !s.bind(c, &msg) {
		return
	}

	session, err := sessionFrom(c, msg)
	if err != nil {
		s.fail(c, err)
		return
	}
	if session == "" {
		session = chat.NewSessionID()
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
	}
	c.Header(chat.SessionHeader, session)

	_, err = s.chat.Stream(ctx, session, msg.Message, func(content string) error {
		start()
		return writeChunk(c, chat.Chunk{Content: content})
	})
	if err != nil {
		if !started {
			s.fail(c, err)
			return
		}
		_ = c.Error(err)
		s.logger.Warn("chat stream failed", append(logger.SessionFields(session, c.GetString(requestIDKey)), zap.Error(err))...)
		_ = writeChunk(c, chat.Chunk{Error: "reply interrupted, please retry"})
		return
	}

	start()
	_ = writeLine(c, chat.StreamDone)
}

func (s *Server) chatReset(c *gin.Context) {
	if err := s.chat.Reset(c.Request.Context(), c.Param("session")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeChunk(c *gin.Context, chunk chat.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	return writeLine(c, string(data))
}

func writeLine(c *gin.Context, payload string) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing stream: %w", err)
	}
	c.Writer.Flush()
	return nil
}
