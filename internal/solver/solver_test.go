package solver

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bfuzz/bfuzz/internal/solution"
)

func TestBuildQuerySubstitutesPlaceholders(t *testing.T) {
	h := New("prob", Config{CallOptions: "[]"})
	q := h.buildQuery("1 < 2")
	require.Equal(t, "cbc_timed_solve_with_opts(prob,[],1 < 2,_,Res,Msec)", q)
}

func TestCliBool(t *testing.T) {
	require.Equal(t, "TRUE", cliBool("true"))
	require.Equal(t, "FALSE", cliBool("false"))
	require.Equal(t, "3", cliBool("3"))
}

func TestClassifyReplyNo(t *testing.T) {
	h := New("prob", Config{})
	reply, err := h.classifyReply("no.")
	require.NoError(t, err)
	require.Equal(t, AnswerNo, reply.Answer)
	require.Equal(t, -1.0, reply.Msec)
}

func TestClassifyReplyYesContradiction(t *testing.T) {
	h := New("prob", Config{})
	resp := "yes([=(res,contradiction_found),=(msec,12)])"
	h.cfg.CallResultVar = "res"
	h.cfg.CallTimeVar = "msec"
	reply, err := h.classifyReply(resp)
	require.NoError(t, err)
	require.Equal(t, AnswerYes, reply.Answer)
	require.Equal(t, InfoContradictionFound, reply.Info)
	require.Equal(t, 12.0, reply.Msec)
}

func TestClassifyReplyYesTimeOut(t *testing.T) {
	h := New("prob", Config{})
	h.cfg.CallResultVar = "res"
	h.cfg.CallTimeVar = "msec"
	resp := "yes([=(res,time_out),=(msec,2500)])"
	reply, err := h.classifyReply(resp)
	require.NoError(t, err)
	require.Equal(t, InfoTimeOut, reply.Info)
	require.Equal(t, 2500.0, reply.Msec)
}

func TestClassifyReplyYesNoSolutionFound(t *testing.T) {
	h := New("prob", Config{})
	h.cfg.CallResultVar = "res"
	h.cfg.CallTimeVar = "msec"
	resp := "yes([=(res,no_solution_found(exhausted)),=(msec,5)])"
	reply, err := h.classifyReply(resp)
	require.NoError(t, err)
	require.Equal(t, InfoNoSolutionFound, reply.Info)
	require.Equal(t, "exhausted", reply.Detail)
	require.Equal(t, 5.0, reply.Msec)
}

func TestClassifyReplyYesSolution(t *testing.T) {
	h := New("prob", Config{})
	h.cfg.CallResultVar = "res"
	h.cfg.CallTimeVar = "msec"
	resp := "yes([=(res,solution([binding(x,int(1),'1')])),=(msec,7)])"
	reply, err := h.classifyReply(resp)
	require.NoError(t, err)
	require.Equal(t, InfoSolution, reply.Info)
	require.Equal(t, 7.0, reply.Msec)
	require.Equal(t, solution.Int{I: 1}, reply.Bindings["x"])
}

func TestPenalizedReply(t *testing.T) {
	h := New("prob", Config{Timeout: 2500 * time.Millisecond, PenaltyFactor: 2})
	r := h.PenalizedReply()
	require.Equal(t, AnswerNo, r.Answer)
	require.Equal(t, InfoTimeOut, r.Info)
	require.Equal(t, 5000.0, r.Msec)
}

func TestScanStartupBannerNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, w := io.Pipe()
	go func() {
		w.Write([]byte("Starting Socket Server\n" +
			"Application Path: /opt/probcli\n" +
			"Port: 9001\n" +
			"probcli revision: abc123\n" +
			"user interrupt reference id12345\n" +
			"-- starting command loop --\n"))
		w.Close()
	}()

	port, interruptID, err := scanStartupBanner(r, time.Second)
	require.NoError(t, err)
	require.Equal(t, 9001, port)
	require.Equal(t, "12345", interruptID)
}

func TestScanStartupBannerTimeoutGoroutineExitsOnClose(t *testing.T) {
	r, w := io.Pipe()

	_, _, err := scanStartupBanner(r, 10*time.Millisecond)
	require.Error(t, err)

	w.Close()
	goleak.VerifyNone(t)
}

func TestStderrTail(t *testing.T) {
	pr, pw := io.Pipe()
	tail := newStderrTail(pr)
	go func() {
		pw.Write([]byte("line1\nline2\nline3\n"))
		pw.Close()
	}()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "line2\nline3", tail.last(2))
}
