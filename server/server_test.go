package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/arena/dialect/kakomimasu"
	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/registry"
	"pkg.world.dev/world-engine/arena/rules"
	"pkg.world.dev/world-engine/arena/scheduler"
	"pkg.world.dev/world-engine/arena/server/handler"
	"pkg.world.dev/world-engine/arena/service"
	"pkg.world.dev/world-engine/arena/testutils"
	"pkg.world.dev/world-engine/arena/types"
)

var t0 = time.Unix(1_700_000_000, 0)

type testServer struct {
	*Server
	t         *testing.T
	clock     *clock.Mock
	scheduler *scheduler.Scheduler
	registry  *registry.Registry
}

func newTestServer(t *testing.T) *testServer {
	testutils.SetTestTimeout(t, 30*time.Second)
	rs, _ := testutils.NewRedisStorage(t, "server-test")

	clk := clock.NewMock()
	clk.Set(t0)
	reg := registry.New(registry.WithClock(clk))
	sched := scheduler.New(match.NewTable(), rules.NewBasic(),
		scheduler.WithClock(clk),
		scheduler.WithStorage(rs),
		scheduler.WithNotifier(scheduler.Notify(reg)),
	)
	s, err := New(service.New(sched, reg, rs))
	require.NoError(t, err)
	t.Cleanup(func() {
		reg.Close()
		_ = s.app.ShutdownWithTimeout(time.Second)
	})
	return &testServer{Server: s, t: t, clock: clk, scheduler: sched, registry: reg}
}

func (s *testServer) advance(d time.Duration) {
	s.clock.Set(t0.Add(d))
	s.scheduler.RunDue(context.Background())
}

func (s *testServer) do(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = strings.NewReader(raw)
		} else {
			bz, err := json.Marshal(body)
			require.NoError(s.t, err)
			reader = bytes.NewReader(bz)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	var out T
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func testBoard() *types.Board {
	return &types.Board{
		Name:              "3x3",
		Width:             3,
		Height:            3,
		Points:            []int{1, 2, 1, 2, 4, 2, 1, 2, 1},
		Seats:             2,
		AgentsPerSeat:     1,
		TotalTurns:        2,
		OperationSeconds:  1,
		TransitionSeconds: 1,
	}
}

func (s *testServer) createArmed() handler.CreateMatchResponse {
	res := s.do(http.MethodPost, "/v1/matches", "", service.CreateMatchRequest{
		Name:     "friendly",
		Category: "test",
		Board:    testBoard(),
		Players:  []match.SeatRequest{{PlayerID: "alice"}, {PlayerID: "bob"}},
	})
	require.Equal(s.t, http.StatusOK, res.StatusCode)
	return decode[handler.CreateMatchResponse](s.t, res)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	res := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body := decode[map[string]any](t, res)
	assert.Equal(t, true, body["isServerRunning"])
}

func TestServer_ActionSchema(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"kakomimasu", "procon", "tomakomai"} {
		res := s.do(http.MethodGet, "/schema/"+name+"/action", "", nil)
		assert.Equal(t, http.StatusOK, res.StatusCode, name)
		_ = res.Body.Close()
	}
	res := s.do(http.MethodGet, "/schema/chess/action", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_MatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	created := s.createArmed()
	id := created.Match.ID
	token := created.Players[0].AccessToken
	put := `{"actions":[{"agentId":0,"type":"PUT","x":1,"y":1}]}`

	res := s.do(http.MethodPost, "/v1/matches/"+id+"/actions", token, put)
	assert.Equal(t, http.StatusTooEarly, res.StatusCode)
	assert.Equal(t, "5", res.Header.Get("Retry-After"))
	errBody := decode[ErrorResponse](t, res)
	assert.Equal(t, "too_early", errBody.Error.Code)
	require.NotNil(t, errBody.Error.RetryAfter)
	assert.Equal(t, 5, *errBody.Error.RetryAfter)

	res = s.do(http.MethodGet, "/v1/matches/"+id, token, nil)
	assert.Equal(t, http.StatusTooEarly, res.StatusCode)

	res = s.do(http.MethodPost, "/v1/matches/"+id+"/players", "", match.SeatRequest{PlayerID: "carol"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	s.advance(5 * time.Second)
	s.advance(5500 * time.Millisecond)
	res = s.do(http.MethodPost, "/v1/matches/"+id+"/actions", token, put)
	require.Equal(t, http.StatusOK, res.StatusCode)
	receipt := decode[match.Receipt](t, res)
	assert.Equal(t, 1, receipt.Turn)

	res = s.do(http.MethodPost, "/v1/matches/"+id+"/actions", "999999x", put)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res = s.do(http.MethodPost, "/v1/matches/missing/actions", token, put)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	s.advance(6500 * time.Millisecond)
	res = s.do(http.MethodPost, "/procon/matches/"+id+"/action", token, `{"actions":[{"agentID":1,"type":"stay"}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "unacceptable_time", decode[ErrorResponse](t, res).Error.Code)
	res = s.do(http.MethodPost, "/tomakomai/matches/"+id+"/actions", token, `{"actions":[{"agentId":1,"type":0}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = s.do(http.MethodGet, "/v1/matches/"+id+"/log", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	turns := decode[[]kakomimasu.Turn](t, res)
	require.Len(t, turns, 1)

	for _, path := range []string{"/v1/matches/" + id, "/procon/matches/" + id, "/tomakomai/matches/" + id} {
		res = s.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
		_ = res.Body.Close()
	}

	res = s.do(http.MethodGet, "/v1/matches?phase=live", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]kakomimasu.Match](t, res), 1)
	res = s.do(http.MethodGet, "/v1/matches?phase=paused", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServer_Boards(t *testing.T) {
	s := newTestServer(t)
	res := s.do(http.MethodPut, "/v1/boards/small", "", testBoard())
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = s.do(http.MethodGet, "/v1/boards/small", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	board := decode[kakomimasu.Board](t, res)
	assert.Equal(t, "small", board.Name)
	assert.Equal(t, 3, board.Width)

	res = s.do(http.MethodGet, "/v1/boards/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	bad := testBoard()
	bad.Points = []int{1}
	res = s.do(http.MethodPut, "/v1/boards/bad", "", bad)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_board", decode[ErrorResponse](t, res).Error.Code)

	res = s.do(http.MethodPost, "/v1/matches", "", service.CreateMatchRequest{BoardName: "small", ForceArm: true})
	require.Equal(t, http.StatusOK, res.StatusCode)
	created := decode[handler.CreateMatchResponse](t, res)
	assert.Equal(t, string(types.PhaseArmed), created.Match.Phase)
}

func TestServer_BadRequests(t *testing.T) {
	s := newTestServer(t)
	res := s.do(http.MethodPost, "/v1/matches", "", `{"board":`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = s.do(http.MethodPost, "/v1/matches", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func (s *testServer) listen() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(s.t, err)
	go func() { _ = s.app.Listener(ln) }()
	return ln.Addr().String()
}

func TestServer_ServerSentEvents(t *testing.T) {
	s := newTestServer(t)
	addr := s.listen()

	res, err := http.Get("http://" + addr + "/v1/stream?phase=open")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	reader := bufio.NewReader(res.Body)
	next := func() (string, registry.Event) {
		var typ string
		var ev registry.Event
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			case line == "" && typ != "":
				return typ, ev
			}
		}
	}

	typ, _ := next()
	assert.Equal(t, "initial", typ)

	res2 := s.do(http.MethodPost, "/v1/matches", "", service.CreateMatchRequest{Board: testBoard()})
	require.Equal(t, http.StatusOK, res2.StatusCode)
	created := decode[handler.CreateMatchResponse](t, res2)

	typ, ev := next()
	assert.Equal(t, "add", typ)
	require.NotNil(t, ev.Match)
	assert.Equal(t, created.Match.ID, ev.Match.ID)
}

func TestServer_WebSocketEvents(t *testing.T) {
	s := newTestServer(t)
	addr := s.listen()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/v1/events?phase=live&new=true", nil) //nolint:bodyclose
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer conn.Close()

	var ev registry.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, registry.EventInitial, ev.Type)

	created := s.createArmed()
	s.advance(5 * time.Second)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, registry.EventAdd, ev.Type)
	assert.Equal(t, created.Match.ID, ev.Match.ID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.registry.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}
