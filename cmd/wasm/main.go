//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"
	"time"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/replay"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/upload"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/verify"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorNoChallenge
	ErrorState
	ErrorUpload
	ErrorExport
)

// The page hosts a single session. JS callbacks run one at a time, but the
// replay loop re-enters Go from requestAnimationFrame, so access is locked.
var (
	mu        sync.Mutex
	sess      *session.Session
	matcher   = verify.NewMatcher(verify.DefaultParams())
	loader    = upload.NewLoader(session.DefaultPrecision)
	scheduler = replay.NewScheduler(replay.SystemClock{})
)

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func makeResponse(data any) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func makeJSONResponse(v any) js.Value {
	b, err := json.Marshal(v)
	if err != nil {
		return makeErrorResponse(ErrorExport, err.Error())
	}
	return makeResponse(string(b))
}

func numbers(args []js.Value, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if args[i].Type() != js.TypeNumber {
			return nil, false
		}
		out[i] = args[i].Float()
	}
	return out, true
}

// Loads a challenge from the JSON the page fetched from /api/video-data.
// Returns: {error: number, data: string}
func loadChallenge(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 1 argument: challengeJSON")
	}

	var payload model.ChallengePayload
	if err := json.Unmarshal([]byte(args[0].String()), &payload); err != nil {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid challenge JSON: %v", err))
	}
	ch := model.Challenge{ID: payload.ID, Question: payload.Question, Answer: payload.Answer}

	mu.Lock()
	defer mu.Unlock()
	scheduler.Cancel()
	if sess == nil {
		sess = session.New("page", ch, session.DefaultOptions())
	} else {
		sess.Load(ch)
	}
	return makeResponse(payload.ID)
}

// Records a gaze sample: x, y, canvasWidth, canvasHeight, wallMs, videoMs.
// Returns: {error: number, data: bool}
func gaze(this js.Value, args []js.Value) interface{} {
	v, ok := numbers(args, 6)
	if !ok {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 6 numbers: x, y, width, height, tWall, tVideo")
	}
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	return makeResponse(sess.IngestGaze(v[0], v[1], v[2], v[3], int64(v[4]), int64(v[5])))
}

// Toggles a click: x, y, canvasWidth, canvasHeight, videoMs.
// Returns: {error: number, data: "added" | "removed" | "ignored"}
func click(this js.Value, args []js.Value) interface{} {
	v, ok := numbers(args, 5)
	if !ok {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 5 numbers: x, y, width, height, tVideo")
	}
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	return makeResponse(sess.RecordTogglePx(v[0], v[1], v[2], v[3], int64(v[4])).String())
}

func setState(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 1 argument: state name")
	}
	st, err := session.ParseState(args[0].String())
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	if err := sess.SetState(st); err != nil {
		return makeErrorResponse(ErrorState, err.Error())
	}
	return makeResponse(st.String())
}

func videoStarted(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	sess.MarkVideoStarted()
	return makeResponse(true)
}

// Verifies the buffered streams in the page. A failed attempt clears the
// buffers; the page then fetches the next challenge either way. Uploaded
// streams are for replay only and always fail.
// Returns: {error: number, data: bool}
func submit(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	snap := sess.Snapshot()
	var verdict model.Verdict
	if sess.State() == session.Replaying {
		scheduler.Cancel()
		verdict = model.Fail(model.ReasonNoData)
	} else {
		verdict, _ = matcher.Submit(snap.Clicks, snap.Gaze, snap.Answers)
	}
	if !verdict.Passed {
		sess.Reset()
	}
	logConsole(fmt.Sprintf("attempt on %s submitted", snap.ChallengeID))
	return makeResponse(verdict.Passed)
}

func reset(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	defer mu.Unlock()
	scheduler.Cancel()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	sess.Reset()
	return makeResponse(true)
}

// Encodes the current buffers as download files.
// Returns: {error: number, data: [{name, content}]}
func exportStreams(this js.Value, args []js.Value) interface{} {
	mode := "pair"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		mode = args[0].String()
	}
	m, err := upload.ParseExportMode(mode)
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, err.Error())
	}

	mu.Lock()
	if sess == nil {
		mu.Unlock()
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	snap := sess.Snapshot()
	mu.Unlock()

	files, err := upload.Export(snap.Gaze, snap.Clicks, m, time.Now())
	if err != nil {
		return makeErrorResponse(ErrorExport, err.Error())
	}
	arr := js.Global().Get("Array").New()
	for i, f := range files {
		obj := js.Global().Get("Object").New()
		obj.Set("name", f.Name)
		obj.Set("content", string(f.Data))
		arr.SetIndex(i, obj)
	}
	return makeResponse(arr)
}

// Loads uploaded files ([{name, content}]) into the buffers for replay.
// Returns: {error: number, data: label}
func loadUploads(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 1 argument: array of {name, content}")
	}
	n := args[0].Length()
	files := make([]upload.File, 0, n)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := args[0].Index(i)
		name := item.Get("name").String()
		files = append(files, upload.File{Name: name, Data: []byte(item.Get("content").String())})
		names = append(names, name)
	}

	res := loader.LoadFiles(files)
	for _, s := range res.Skipped {
		logConsole(fmt.Sprintf("skipping %s: %v", s.Name, s.Err))
	}
	if res.Empty() {
		return makeErrorResponse(ErrorUpload, "No gaze or click stream found in the selected files")
	}

	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	snap := sess.Snapshot()
	g, c := snap.Gaze, snap.Clicks
	if res.HasGaze {
		g = res.Gaze
	}
	if res.HasClicks {
		c = res.Clicks
	}
	sess.LoadUploaded(g, c)
	return makeResponse(upload.Label(names))
}

// rafLoop drives replay frames from requestAnimationFrame.
type rafLoop struct{}

func (rafLoop) Start(frame func()) func() {
	var (
		cb      js.Func
		stopped bool
		once    sync.Once
	)
	cb = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if stopped {
			return nil
		}
		frame()
		if !stopped {
			js.Global().Call("requestAnimationFrame", cb)
		}
		return nil
	})
	js.Global().Call("requestAnimationFrame", cb)

	return func() {
		once.Do(func() {
			stopped = true
			// Release after the pending frame has had a chance to run.
			js.Global().Call("setTimeout", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
				cb.Release()
				return nil
			}), 100)
		})
	}
}

// Starts replaying the buffers against a <video> element. onFrame receives
// {gaze: string, clicks: string, videoTimeMs: number} with the visible
// prefixes as JSON.
func startReplay(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || args[0].Type() != js.TypeObject || args[1].Type() != js.TypeFunction {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 2 arguments: videoElement, onFrame")
	}
	videoEl, onFrame := args[0], args[1]

	mu.Lock()
	if sess == nil {
		mu.Unlock()
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	snap := sess.Snapshot()
	mu.Unlock()

	video := replay.VideoClockFunc(func() int64 {
		return int64(videoEl.Get("currentTime").Float() * 1000)
	})
	scheduler.Load(snap.Gaze, snap.Clicks)
	scheduler.Start(rafLoop{}, video, func(f replay.Frame) {
		g, _ := json.Marshal(f.Gaze)
		c, _ := json.Marshal(f.Clicks)
		obj := js.Global().Get("Object").New()
		obj.Set("gaze", string(g))
		obj.Set("clicks", string(c))
		obj.Set("videoTimeMs", f.VideoTimeMs)
		onFrame.Invoke(obj)
	})
	return makeResponse(true)
}

func cancelReplay(this js.Value, args []js.Value) interface{} {
	scheduler.Cancel()
	return makeResponse(true)
}

func snapshot(this js.Value, args []js.Value) interface{} {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return makeErrorResponse(ErrorNoChallenge, "No challenge loaded")
	}
	snap := sess.Snapshot()
	return makeJSONResponse(struct {
		ChallengeID string             `json:"challengeId"`
		State       string             `json:"state"`
		Gaze        []model.GazeSample `json:"gaze"`
		Clicks      []model.ClickEvent `json:"clicks"`
	}{snap.ChallengeID, sess.State().String(), snap.Gaze, snap.Clicks})
}

func logConsole(msg string) {
	console := js.Global().Get("console")
	if !console.IsUndefined() {
		console.Call("log", msg)
	}
}

func main() {
	logConsole("🔧 GazeCaptcha WASM module initializing...")

	done := make(chan struct{})

	exports := map[string]func(js.Value, []js.Value) interface{}{
		"gcLoadChallenge": loadChallenge,
		"gcGaze":          gaze,
		"gcClick":         click,
		"gcSetState":      setState,
		"gcVideoStarted":  videoStarted,
		"gcSubmit":        submit,
		"gcReset":         reset,
		"gcExport":        exportStreams,
		"gcLoadUploads":   loadUploads,
		"gcSnapshot":      snapshot,
		"gcStartReplay":   startReplay,
		"gcCancelReplay":  cancelReplay,
	}
	for name, fn := range exports {
		js.Global().Set(name, js.FuncOf(fn))
	}
	logConsole(fmt.Sprintf("📝 %d functions registered", len(exports)))

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		eventInit := js.Global().Get("Object").New()
		event := js.Global().Get("CustomEvent").New("wasmReady", eventInit)
		window.Call("dispatchEvent", event)
		logConsole("✅ wasmReady event dispatched")
	} else {
		console := js.Global().Get("console")
		if !console.IsUndefined() {
			console.Call("error", "❌ window object is undefined!")
		}
	}

	<-done
}
