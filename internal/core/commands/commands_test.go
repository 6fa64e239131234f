// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	test "github.com/jaycherian/gcp-go-scene-video/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChainContext(in interface{}) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	if in != nil {
		chCtx.Add(cor.CtxIn, in)
	}
	return chCtx
}

func TestDecodeRenderRequest(t *testing.T) {
	fromJSON, err := DecodeRenderRequest(`{"job_id":"a","scenes":[{"text":"Hi","target_duration_seconds":3}],"style":"kenburns"}`)
	require.NoError(t, err)
	assert.Equal(t, "a", fromJSON.JobID)
	assert.Equal(t, "kenburns", fromJSON.Style)
	require.Len(t, fromJSON.Scenes, 1)
	assert.Equal(t, 3.0, fromJSON.Scenes[0].TargetDurationSeconds)

	fromBytes, err := DecodeRenderRequest([]byte(`{"scenes":[]}`))
	require.NoError(t, err)
	assert.Empty(t, fromBytes.Scenes)

	original := model.GetExampleRequest()
	copied, err := DecodeRenderRequest(original)
	require.NoError(t, err)
	copied.JobID = "changed"
	assert.Empty(t, original.JobID, "the caller's request must not be modified")

	_, err = DecodeRenderRequest(42)
	assert.Error(t, err)
	_, err = DecodeRenderRequest("{not json")
	assert.Error(t, err)
	_, err = DecodeRenderRequest((*model.RenderRequest)(nil))
	assert.Error(t, err)
}

func TestRenderRequestReader(t *testing.T) {
	defaults := RequestDefaults{Language: "de", Voice: "v1", Style: "kenburns", FailurePolicy: model.FailurePolicySkip}
	reader := NewRenderRequestReader("read", defaults, map[string]model.RenderStyle{
		"square": {Width: 720, Height: 720},
	})

	bare := model.GetExampleRequest()
	bare.Language, bare.Voice = "", ""
	chCtx := newChainContext(bare)
	chCtx.Add(ParamJobID, "from-listener")
	reader.Execute(chCtx)
	require.False(t, chCtx.HasErrors())

	req := chCtx.Get(ParamRenderRequest).(*model.RenderRequest)
	assert.Equal(t, "from-listener", req.JobID)
	assert.Equal(t, "de", req.Language)
	assert.Equal(t, "v1", req.Voice)
	assert.Equal(t, model.FailurePolicySkip, req.FailurePolicy)
	style := chCtx.Get(ParamRenderStyle).(*model.RenderStyle)
	assert.Equal(t, model.EffectKenBurns, style.Effect)
	assert.Equal(t, req, chCtx.Get(cor.CtxOut))

	custom := model.GetExampleRequest()
	custom.Style = "square"
	chCtx = newChainContext(custom)
	reader.Execute(chCtx)
	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "en", chCtx.Get(ParamRenderRequest).(*model.RenderRequest).Language, "request values win over defaults")
	style = chCtx.Get(ParamRenderStyle).(*model.RenderStyle)
	assert.Equal(t, 720, style.Width)
	assert.Equal(t, 25, style.FrameRate, "unset fields take the defaults")
	assert.NotEmpty(t, chCtx.Get(ParamJobID))

	unknown := model.GetExampleRequest()
	unknown.Style = "neon"
	chCtx = newChainContext(unknown)
	reader.Execute(chCtx)
	assert.ErrorContains(t, cor.Err(chCtx), "unknown render style")

	blank := &model.RenderRequest{JobID: "blank", Scenes: []*model.Scene{{Text: "  "}}}
	chCtx = newChainContext(blank)
	reader.Execute(chCtx)
	assert.ErrorContains(t, cor.Err(chCtx), "no narration text")
	assert.ErrorIs(t, cor.Err(chCtx), model.ErrInvalidRequest)
	assert.Equal(t, "blank", chCtx.Get(ParamJobID), "the job id is published even when validation fails")

	chCtx = newChainContext("{not json")
	reader.Execute(chCtx)
	assert.ErrorIs(t, cor.Err(chCtx), model.ErrInvalidRequest)
}

func TestResolveStyle(t *testing.T) {
	styles := model.BuiltinStyles()
	style, err := ResolveStyle(styles, "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRenderStyle().Width, style.Width)

	style, err = ResolveStyle(styles, model.StyleCharacter)
	require.NoError(t, err)
	assert.True(t, style.CharacterMode)

	_, err = ResolveStyle(styles, "missing")
	assert.Error(t, err)
}

func TestWorkDirPreparer(t *testing.T) {
	base, out := t.TempDir(), t.TempDir()
	chCtx := newChainContext(&model.RenderRequest{JobID: "wd"})
	NewWorkDirPreparer("wd", base, out).Execute(chCtx)
	require.False(t, chCtx.HasErrors())

	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	for _, dir := range wd.Dirs() {
		assert.DirExists(t, dir)
	}
	assert.Equal(t, filepath.Join(base, "wd"), wd.Root)

	// An output "directory" that is a regular file cannot be created.
	blocked := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	chCtx = newChainContext(&model.RenderRequest{JobID: "wd2"})
	NewWorkDirPreparer("wd", base, blocked).Execute(chCtx)
	assert.True(t, chCtx.HasErrors())
}

func TestWorkDirPreparerStaysInsideBase(t *testing.T) {
	parent := t.TempDir()
	base := filepath.Join(parent, "work")
	chCtx := newChainContext(&model.RenderRequest{JobID: "../escaped"})
	NewWorkDirPreparer("wd", base, t.TempDir()).Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.NoDirExists(t, filepath.Join(parent, "escaped"))
	assert.Nil(t, chCtx.Get(ParamWorkDir))
}

func TestRunScenesSkipPolicy(t *testing.T) {
	skipped, err := runScenes(context.Background(), 5, 2, model.FailurePolicySkip, func(_ context.Context, i int) error {
		if i%2 == 0 {
			return model.NewSceneError(i+1, model.StageSpeech, errors.New("no voice"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, skipped, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{skipped[0].Index, skipped[1].Index, skipped[2].Index})
}

func TestRunScenesAbortPolicy(t *testing.T) {
	var ran atomic.Int32
	skipped, err := runScenes(context.Background(), 20, 1, model.FailurePolicyAbort, func(_ context.Context, i int) error {
		ran.Add(1)
		if i == 1 {
			return model.NewSceneError(2, model.StageVisual, errors.New("bad image"))
		}
		return nil
	})
	var se *model.SceneError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Index)
	assert.Empty(t, skipped)
	assert.Less(t, ran.Load(), int32(20), "remaining scenes are not started")
}

func TestRunScenesSkipPolicyStillAbortsOnOtherErrors(t *testing.T) {
	_, err := runScenes(context.Background(), 3, 3, model.FailurePolicySkip, func(_ context.Context, i int) error {
		if i == 0 {
			return errors.New("work directory vanished")
		}
		return nil
	})
	assert.ErrorContains(t, err, "work directory vanished")
}

func TestRunScenesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := runScenes(ctx, 4, 4, model.FailurePolicySkip, func(ctx context.Context, i int) error {
		if i == 0 {
			cancel()
		}
		select {
		case <-ctx.Done():
			return model.NewSceneError(i+1, model.StageSpeech, ctx.Err())
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompact(t *testing.T) {
	a, b := &model.SceneClip{Index: 1}, &model.SceneClip{Index: 3}
	assert.Equal(t, []*model.SceneClip{a, b}, compact([]*model.SceneClip{a, nil, b, nil}))
	assert.Empty(t, compact([]*model.SceneClip{nil}))
}

func prepareRender(t *testing.T, req *model.RenderRequest) cor.Context {
	t.Helper()
	wd := model.NewWorkDir(t.TempDir(), req.JobID, t.TempDir())
	for _, dir := range wd.Dirs() {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	chCtx := newChainContext(nil)
	chCtx.Add(ParamJobID, req.JobID)
	chCtx.Add(ParamRenderRequest, req)
	chCtx.Add(ParamRenderStyle, model.DefaultRenderStyle())
	chCtx.Add(ParamWorkDir, wd)
	return chCtx
}

func writeAsset(t *testing.T, wd *model.WorkDir, index int, scene *model.Scene) *model.SynthesizedAsset {
	t.Helper()
	image, audio := wd.ImageBase(index)+".png", wd.AudioBase(index)+".mp3"
	require.NoError(t, os.WriteFile(image, []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(audio, make([]byte, 2048), 0o644))
	return &model.SynthesizedAsset{Index: index, Scene: scene, VisualPath: image, AudioPath: audio}
}

func TestSceneComposer(t *testing.T) {
	req := model.GetExampleRequest()
	req.JobID = "compose"
	req.FailurePolicy = model.FailurePolicyAbort
	chCtx := prepareRender(t, req)
	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	chCtx.Add(ParamAssets, []*model.SynthesizedAsset{
		writeAsset(t, wd, 1, req.Scenes[0]),
		writeAsset(t, wd, 2, &model.Scene{Text: "Short", TargetDurationSeconds: 1}),
	})

	fake := test.NewFakeMedia(3.0)
	NewSceneComposer("compose", fake, fake, 2, 0).Execute(chCtx)
	require.False(t, chCtx.HasErrors(), "%v", chCtx.GetErrors())

	clips := chCtx.Get(ParamClips).([]*model.SceneClip)
	require.Len(t, clips, 2)
	assert.Equal(t, 6.0, clips[0].EffectiveDurationSeconds)
	assert.Equal(t, 2, clips[0].SubtitleLines)
	// The target is shorter than the narration: audio plus the default padding.
	assert.Equal(t, 3.5, clips[1].EffectiveDurationSeconds)
	assert.Equal(t, wd.ClipPath(2), clips[1].Path)
	assert.FileExists(t, clips[1].Path)
}

func TestSceneComposerSkipsFailedEncode(t *testing.T) {
	req := model.GetExampleRequest()
	req.JobID = "compose-skip"
	req.FailurePolicy = model.FailurePolicySkip
	chCtx := prepareRender(t, req)
	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	chCtx.Add(ParamAssets, []*model.SynthesizedAsset{
		writeAsset(t, wd, 1, req.Scenes[0]),
		writeAsset(t, wd, 2, req.Scenes[1]),
	})

	fake := test.NewFakeMedia(1.0)
	fake.FailCompose = map[int]error{1: errors.New("x264 exploded")}
	NewSceneComposer("compose", fake, fake, 1, 0.25).Execute(chCtx)
	require.False(t, chCtx.HasErrors())

	clips := chCtx.Get(ParamClips).([]*model.SceneClip)
	require.Len(t, clips, 1)
	assert.Equal(t, 2, clips[0].Index)
	require.Len(t, SceneErrors(chCtx), 1)
	assert.Equal(t, model.StageCompose, SceneErrors(chCtx)[0].Stage)
	assert.Equal(t, []int{1}, FailedScenes(chCtx))
}

func composedClips(t *testing.T, wd *model.WorkDir, seconds ...float64) []*model.SceneClip {
	t.Helper()
	var clips []*model.SceneClip
	for i, s := range seconds {
		path := wd.ClipPath(i + 1)
		require.NoError(t, os.WriteFile(path, []byte("duration="+strconv.FormatFloat(s, 'f', 3, 64)+"\n"), 0o644))
		clips = append(clips, &model.SceneClip{Index: i + 1, Path: path, EffectiveDurationSeconds: s})
	}
	return clips
}

func TestMerger(t *testing.T) {
	req := &model.RenderRequest{JobID: "merge"}
	chCtx := prepareRender(t, req)
	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	fake := test.NewFakeMedia(0)
	clips := composedClips(t, wd, 6, 4.5, 3)

	merger := &Merger{Concat: fake, Prober: fake, URLPrefix: "https://cdn.example.com/v"}
	// Out of order on purpose; the merge follows scene order.
	video, err := merger.Merge(context.Background(), req, wd, []*model.SceneClip{clips[2], clips[0], clips[1]})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, video.Scenes)
	assert.InDelta(t, 13.5, video.TotalDurationSeconds, 0.01)
	assert.Equal(t, 13.5, video.ExpectedDuration)
	assert.Equal(t, "https://cdn.example.com/v/video_merge.mp4", video.URL)

	concat := fake.Concats()[0]
	assert.Equal(t, []string{clips[0].Path, clips[1].Path, clips[2].Path}, concat.ClipPaths)
	assert.FileExists(t, wd.ManifestPath())
}

func TestMergerFailure(t *testing.T) {
	req := &model.RenderRequest{JobID: "merge-fail"}
	chCtx := prepareRender(t, req)
	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	fake := test.NewFakeMedia(0)
	fake.FailConcat = errors.New("no space left on device")
	clips := composedClips(t, wd, 2, 2)

	chCtx.Add(ParamClips, clips)
	NewSequenceMerger("merge", &Merger{Concat: fake, Prober: fake}).Execute(chCtx)

	var mergeErr *model.MergeError
	require.ErrorAs(t, cor.Err(chCtx), &mergeErr)
	assert.Equal(t, []int{1, 2}, mergeErr.SucceededIndexes())
	assert.NoFileExists(t, wd.OutputPath(req.OutputFileName()))
	assert.Nil(t, chCtx.Get(ParamFinalVideo))

	_, err := (&Merger{Concat: fake, Prober: fake}).Merge(context.Background(), req, wd, nil)
	require.ErrorAs(t, err, &mergeErr)
	assert.Empty(t, mergeErr.Succeeded)
}

func TestMergerProbeFailureRemovesOutput(t *testing.T) {
	req := &model.RenderRequest{JobID: "merge-probe"}
	chCtx := prepareRender(t, req)
	wd := chCtx.Get(ParamWorkDir).(*model.WorkDir)
	fake := test.NewFakeMedia(0)
	fake.FailProbe = map[string]error{req.OutputFileName(): errors.New("moov atom not found")}
	clips := composedClips(t, wd, 2, 3)

	chCtx.Add(ParamClips, clips)
	NewSequenceMerger("merge", &Merger{Concat: fake, Prober: fake}).Execute(chCtx)

	var mergeErr *model.MergeError
	require.ErrorAs(t, cor.Err(chCtx), &mergeErr)
	assert.ErrorContains(t, mergeErr, "moov atom not found")
	assert.Equal(t, []int{1, 2}, mergeErr.SucceededIndexes())
	require.Len(t, fake.Concats(), 1, "the concat itself succeeded")
	assert.NoFileExists(t, wd.OutputPath(req.OutputFileName()))
	assert.Nil(t, chCtx.Get(ParamFinalVideo))
}

func TestVideoURL(t *testing.T) {
	assert.Equal(t, "/api/v1/videos/files/a.mp4", videoURL("", "a.mp4"))
	assert.Equal(t, "/videos/a.mp4", videoURL("/videos", "a.mp4"))
	assert.Equal(t, "/videos/a.mp4", videoURL("/videos/", "a.mp4"))
}

func TestTerminalStatus(t *testing.T) {
	chCtx := newChainContext(nil)
	chCtx.Add(ParamJobID, "t1")
	chCtx.Add(ParamFinalVideo, &model.FinalVideo{URL: "/v.mp4", SizeBytes: 10, TotalDurationSeconds: 12})
	RecordSceneErrors(chCtx, model.NewSceneError(3, model.StageSpeech, errors.New("mute")))

	status := TerminalStatus(chCtx)
	assert.Equal(t, model.JobSucceeded, status.State)
	assert.Equal(t, "/v.mp4", status.VideoURL)
	assert.Equal(t, int64(10), status.Size)
	assert.Equal(t, 12.0, status.Duration)
	assert.Equal(t, []int{3}, status.FailedScenes)

	chCtx.AddError("compose", model.NewSceneError(1, model.StageCompose, errors.New("boom")))
	status = TerminalStatus(chCtx)
	assert.Equal(t, model.JobFailed, status.State)
	assert.False(t, status.Success)
	assert.Equal(t, []int{1, 3}, status.FailedScenes)
	assert.Contains(t, status.Error, "scene 1 failed at compose stage")

	empty := newChainContext(nil)
	empty.Add(ParamJobID, "t2")
	status = TerminalStatus(empty)
	assert.Equal(t, model.JobFailed, status.State)
	assert.Equal(t, "render finished without a video", status.Error)
}

type failingStore struct{ calls atomic.Int32 }

func (f *failingStore) Put(context.Context, *model.JobStatus) error {
	f.calls.Add(1)
	return errors.New("store offline")
}

func (f *failingStore) Get(context.Context, string) (*model.JobStatus, error) {
	return nil, errors.New("store offline")
}

func TestJobStatusWriter(t *testing.T) {
	store := &failingStore{}
	writer := NewJobStatusWriter("status", store)

	chCtx := newChainContext(nil)
	writer.Execute(chCtx)
	assert.Zero(t, store.calls.Load(), "nothing is written without a job id")

	// A cancelled job still gets its status written, and a store failure
	// does not become a render error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chCtx.SetContext(ctx)
	chCtx.Add(ParamJobID, "j")
	require.True(t, writer.IsExecutable(chCtx))
	writer.Execute(chCtx)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.False(t, chCtx.HasErrors())
}

func TestParseScript(t *testing.T) {
	script, err := ParseScript("```json\n{\"title\":\"t\",\"scenes\":[{\"text\":\"a\"},{\"text\":\" \"},null,{\"text\":\"b\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, script.Scenes, 2)
	assert.Equal(t, "b", script.Scenes[1].Text)

	_, err = ParseScript(`{"scenes":[{"text":""}]}`)
	assert.ErrorContains(t, err, "no scenes")
	_, err = ParseScript("I cannot help with that.")
	assert.Error(t, err)
}

func TestBuildRenderRequest(t *testing.T) {
	script := &model.GeneratedScript{Scenes: []*model.Scene{
		{Text: "one"},
		{Text: "two", VisualRef: "a red fox"},
		{Text: "three"},
		{Text: "four"},
	}}
	page := &model.ContentPage{Images: []string{"https://x/1.jpg", "https://x/2.jpg"}}
	req := &model.ContentRequest{JobID: "c", Voice: "v", MaxScenes: 3, FailurePolicy: model.FailurePolicySkip}

	out := BuildRenderRequest(script, req, page)
	require.Len(t, out.Scenes, 3)
	assert.Equal(t, "https://x/1.jpg", out.Scenes[0].VisualRef)
	assert.Equal(t, "a red fox", out.Scenes[1].VisualRef)
	assert.Equal(t, "https://x/2.jpg", out.Scenes[2].VisualRef)
	assert.Equal(t, "c", out.JobID)
	assert.Equal(t, "v", out.Voice)
	assert.Equal(t, model.FailurePolicySkip, out.FailurePolicy)

	params := GenerateParams(&model.ContentPage{Title: "T", Content: string(make([]rune, MaxPromptContentRunes+10))}, &model.ContentRequest{})
	assert.Equal(t, DefaultMaxScenes, params["MAX_SCENES"])
	assert.Len(t, []rune(params["CONTENT"].(string)), MaxPromptContentRunes)
	assert.Contains(t, params["EXAMPLE_JSON"], "octopuses")
}

type pageSource struct{ err error }

func (p pageSource) Fetch(_ context.Context, pageURL string) (*model.ContentPage, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &model.ContentPage{URL: pageURL, Title: "T", Content: "C"}, nil
}

func TestContentFetcher(t *testing.T) {
	chCtx := newChainContext(`{"url":"https://example.com","job_id":"cf"}`)
	NewContentFetcher("fetch", pageSource{}).Execute(chCtx)
	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "cf", chCtx.Get(ParamJobID))
	page := chCtx.Get(ParamContentPage).(*model.ContentPage)
	assert.Equal(t, "https://example.com", page.URL)

	chCtx = newChainContext(&model.ContentRequest{})
	NewContentFetcher("fetch", pageSource{}).Execute(chCtx)
	assert.ErrorContains(t, cor.Err(chCtx), "no url")
	assert.NotEmpty(t, chCtx.Get(ParamJobID))

	chCtx = newChainContext(&model.ContentRequest{URL: "https://example.com"})
	NewContentFetcher("fetch", pageSource{err: errors.New("403")}).Execute(chCtx)
	assert.ErrorContains(t, cor.Err(chCtx), "403")
}

func TestGCSFileUploadMissingVideo(t *testing.T) {
	chCtx := newChainContext(nil)
	chCtx.Add(ParamFinalVideo, &model.FinalVideo{Name: "gone.mp4", Path: filepath.Join(t.TempDir(), "gone.mp4")})
	upload := NewGCSFileUpload("upload", nil, "bucket", "videos")
	require.True(t, upload.IsExecutable(chCtx))
	upload.Execute(chCtx)
	assert.ErrorContains(t, cor.Err(chCtx), "failed to open file")
}
