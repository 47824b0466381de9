package service

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleepstars/ollamabridge/internal/config"
)

// freePort asks the kernel for an ephemeral port and releases it again.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(port int) config.Config {
	cfg := config.Default()
	cfg.Port = port
	return cfg
}

func okHandler() HandlerFactory {
	return func(cfg config.Config) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "port %d", cfg.Port)
		})
	}
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestController_StartStop(t *testing.T) {
	port := freePort(t)
	ctrl := NewController(testConfig(port), okHandler())
	assert.Equal(t, Stopped, ctrl.Status())
	assert.Equal(t, "", ctrl.Addr())

	require.NoError(t, ctrl.Start())
	assert.Equal(t, Running, ctrl.Status())
	assert.NotEmpty(t, ctrl.Addr())

	status, body := getBody(t, fmt.Sprintf("http://127.0.0.1:%d/", port))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, fmt.Sprintf("port %d", port), body)

	require.NoError(t, ctrl.Stop())
	assert.Equal(t, Stopped, ctrl.Status())
	assert.Equal(t, "", ctrl.Addr())

	_, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	assert.Error(t, err)
}

func TestController_StartWhileRunning(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	assert.ErrorIs(t, ctrl.Start(), ErrAlreadyRunning)
	assert.Equal(t, Running, ctrl.Status())
}

func TestController_StopWhileStopped(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())

	require.NoError(t, ctrl.Stop())
	require.NoError(t, ctrl.Stop())
	assert.Equal(t, Stopped, ctrl.Status())
}

func TestController_PortInUse(t *testing.T) {
	port := freePort(t)
	occupier, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)

	ctrl := NewController(testConfig(port), okHandler())
	err = ctrl.Start()

	var portErr *PortInUseError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, port, portErr.Port)
	assert.Equal(t, Failed, ctrl.Status())

	// retry succeeds once the port frees up
	occupier.Close()
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()
	assert.Equal(t, Running, ctrl.Status())
}

func TestController_StopClearsFailed(t *testing.T) {
	port := freePort(t)
	occupier, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)
	defer occupier.Close()

	ctrl := NewController(testConfig(port), okHandler())
	require.Error(t, ctrl.Start())
	assert.Equal(t, Failed, ctrl.Status())

	require.NoError(t, ctrl.Stop())
	assert.Equal(t, Stopped, ctrl.Status())
}

func TestController_ReconfigureWhileStopped(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())

	next := testConfig(freePort(t))
	next.OllamaBaseURL = "http://localhost:9999"
	require.NoError(t, ctrl.Reconfigure(next))

	assert.Equal(t, Stopped, ctrl.Status())
	assert.Equal(t, next, ctrl.Config())
}

func TestController_ReconfigureRejectsInvalid(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())

	bad := testConfig(0)
	assert.Error(t, ctrl.Reconfigure(bad))
}

func TestController_ReconfigureWhileRunning(t *testing.T) {
	oldPort := freePort(t)
	ctrl := NewController(testConfig(oldPort), okHandler())
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	newPort := freePort(t)
	require.NoError(t, ctrl.Reconfigure(testConfig(newPort)))
	assert.Equal(t, Running, ctrl.Status())

	status, body := getBody(t, fmt.Sprintf("http://127.0.0.1:%d/", newPort))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, fmt.Sprintf("port %d", newPort), body)

	_, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", oldPort))
	assert.Error(t, err)
}

func TestController_ReconfigureBindFailureFails(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())
	require.NoError(t, ctrl.Start())

	takenPort := freePort(t)
	occupier, err := net.Listen("tcp", fmt.Sprintf(":%d", takenPort))
	require.NoError(t, err)
	defer occupier.Close()

	err = ctrl.Reconfigure(testConfig(takenPort))
	var portErr *PortInUseError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, Failed, ctrl.Status())

	require.NoError(t, ctrl.Stop())
}

func TestController_BusyDuringTransition(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slowBuild := func(cfg config.Config) http.Handler {
		close(entered)
		<-release
		return http.NewServeMux()
	}

	ctrl := NewController(testConfig(freePort(t)), slowBuild)

	startDone := make(chan error, 1)
	go func() { startDone <- ctrl.Start() }()

	<-entered
	assert.Equal(t, Starting, ctrl.Status())

	err := ctrl.Stop()
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "stop", busy.Command)
	assert.Equal(t, Starting, busy.State)

	err = ctrl.Reconfigure(testConfig(freePort(t)))
	assert.ErrorAs(t, err, &busy)

	close(release)
	require.NoError(t, <-startDone)
	defer ctrl.Stop()
	assert.Equal(t, Running, ctrl.Status())
}

func TestController_GracePeriodCutsStreams(t *testing.T) {
	started := make(chan struct{})
	hang := func(cfg config.Config) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			// never returns on its own, like an abandoned stream
			<-r.Context().Done()
		})
	}

	port := freePort(t)
	ctrl := NewController(testConfig(port), hang)
	ctrl.SetGracePeriod(100 * time.Millisecond)
	require.NoError(t, ctrl.Start())

	go http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	<-started

	begin := time.Now()
	require.NoError(t, ctrl.Stop())
	assert.Less(t, time.Since(begin), 3*time.Second)
	assert.Equal(t, Stopped, ctrl.Status())
}

func TestController_SubscribeSeesTransitions(t *testing.T) {
	ctrl := NewController(testConfig(freePort(t)), okHandler())
	updates := ctrl.Subscribe()

	require.NoError(t, ctrl.Start())
	require.NoError(t, ctrl.Stop())

	var seen []State
	for len(seen) < 4 {
		select {
		case s := <-updates:
			seen = append(seen, s)
		case <-time.After(time.Second):
			t.Fatalf("only saw %v", seen)
		}
	}
	assert.Equal(t, []State{Starting, Running, Stopping, Stopped}, seen)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "failed", Failed.String())
}
