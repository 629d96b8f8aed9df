package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zurustar/rolandseq/pkg/cli"
	"github.com/zurustar/rolandseq/pkg/fileutil"
	"github.com/zurustar/rolandseq/pkg/logger"
	"github.com/zurustar/rolandseq/pkg/output"
	"github.com/zurustar/rolandseq/pkg/playback"
	"github.com/zurustar/rolandseq/pkg/prebuffer"
	"github.com/zurustar/rolandseq/pkg/sequence"
	"github.com/zurustar/rolandseq/pkg/sysex"
	"github.com/zurustar/rolandseq/pkg/worker"
)

// ErrNoMIDIFile はMIDIファイルが指定されていない場合のエラー
var ErrNoMIDIFile = errors.New("no MIDI file specified")

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	seq    *sequence.Sequence
	sink   output.Sink
	engine *playback.Engine
	stdout io.Writer
}

// Option はApplicationの設定を変更する
type Option func(*Application)

// WithSink 出力先を差し替える（ポートやSoundFontを開かない）
func WithSink(s output.Sink) Option {
	return func(app *Application) { app.sink = s }
}

// WithStdout ポート一覧の出力先を差し替える
func WithStdout(w io.Writer) Option {
	return func(app *Application) { app.stdout = w }
}

// New Applicationを作成
func New(opts ...Option) *Application {
	app := &Application{stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	return app.RunContext(context.Background(), args)
}

// RunContext ctxがキャンセルされるまでアプリケーションを実行
func (app *Application) RunContext(ctx context.Context, args []string) error {
	// 1. コマンドライン引数の解析
	config, err := cli.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.config = config

	if config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := logger.InitLogger(config.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()

	// 3. ポート一覧の表示
	if config.ListPorts {
		app.listPorts()
		return nil
	}

	app.log.Info("Application started")

	// 4. MIDIファイルの読み込み
	if err := app.loadSequence(); err != nil {
		return fmt.Errorf("failed to load sequence: %w", err)
	}

	// 5. 出力先を開く
	if err := app.openOutput(); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer app.closeOutput()

	// 6. 再生前のパラメータ送信
	if err := app.sendParams(); err != nil {
		return fmt.Errorf("failed to send parameters: %w", err)
	}

	// 7. タイムアウトの設定
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		app.log.Info("Timeout set", "duration", config.Timeout)
	}

	// 8. 再生ジョブの準備
	job, err := app.prepareJob(ctx)
	if err != nil {
		if ctx.Err() != nil {
			app.log.Info("Playback cancelled before start", "reason", ctx.Err())
			return nil
		}
		return fmt.Errorf("failed to prepare playback: %w", err)
	}

	// 9. 再生
	if err := app.play(ctx, job); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	app.log.Info("Application finished")
	return nil
}

// listPorts 出力ポートの一覧を表示する
func (app *Application) listPorts() {
	ports := output.ListPorts()
	if len(ports) == 0 {
		fmt.Fprintln(app.stdout, "No MIDI output ports found")
		return
	}
	for i, name := range ports {
		fmt.Fprintf(app.stdout, "%d: %s\n", i, name)
	}
}

// loadSequence SMFを読み込み、概要をログに出す
func (app *Application) loadSequence() error {
	if app.config.MIDIFile == "" {
		return ErrNoMIDIFile
	}
	path, err := fileutil.Resolve(app.config.MIDIFile)
	if err != nil {
		return fmt.Errorf("%s: %w", app.config.MIDIFile, err)
	}

	seq, err := sequence.LoadFile(path, sequence.Options{})
	if err != nil {
		return err
	}
	app.seq = seq

	for _, w := range seq.Warnings {
		app.log.Warn("Sequence warning", "error", w)
	}
	for i, tr := range seq.Tracks {
		app.log.Debug("Track", "index", i, "name", tr.Name, "events", len(tr.Events))
	}
	app.log.Info("Sequence loaded",
		"path", path,
		"ppq", seq.PPQ,
		"tracks", len(seq.Tracks),
		"events", len(seq.Events),
		"tempoChanges", len(seq.Tempo.Entries()),
		"bpm", seq.Tempo.BPMAt(app.config.StartTick),
		"duration", seq.Duration())
	return nil
}

// openOutput ポートまたはSoundFontシンセを開く
// ポートとSoundFontの両方が指定された場合は両方へ送る
func (app *Application) openOutput() error {
	if app.sink != nil {
		return nil
	}

	var sinks output.Multi
	if app.config.Port != "" {
		port, err := output.OpenPort(app.config.Port)
		if err != nil {
			return err
		}
		app.log.Info("MIDI port opened", "port", port.Name())
		sinks = append(sinks, port)
	}

	if app.config.Port == "" || app.config.SoundFont != "" {
		path, err := findSoundFont(app.config.SoundFont, app.config.MIDIFile)
		if err == nil {
			var synth *output.Synth
			if synth, err = output.NewSynth(path, nil); err == nil {
				app.log.Info("SoundFont synthesizer started", "soundfont", path)
				sinks = append(sinks, synth)
			}
		}
		if err != nil {
			if cerr := sinks.Close(); cerr != nil {
				app.log.Warn("Failed to close output", "error", cerr)
			}
			return err
		}
	}

	app.sink = combine(sinks)
	return nil
}

// combine 出力が1つならそのまま返し、複数ならまとめて送る
func combine(sinks output.Multi) output.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}

// closeOutput 全ノートを止めて出力を閉じる
func (app *Application) closeOutput() {
	if app.sink == nil {
		return
	}
	output.AllNotesOff(app.sink)
	if err := app.sink.Close(); err != nil {
		app.log.Warn("Failed to close output", "error", err)
	}
}

// sendParams 設定されたパラメータをDT1で送る
func (app *Application) sendParams() error {
	for _, p := range app.config.Params {
		msg, err := sysex.DataSet(app.config.DeviceID, sysex.ModelJDXi, p.Address, p.Data...)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", p, err)
		}
		app.sink.SendBytes(msg.Bytes())
		app.log.Info("Parameter sent", "message", msg)
	}
	return nil
}

// filter 設定からミュートフィルタを作る
func (app *Application) filter() *playback.Filter {
	f := playback.NewFilter()
	for _, tr := range app.config.MuteTracks {
		f.MuteTrack(tr, true)
	}
	for _, ch := range app.config.MuteChannels {
		f.MuteChannel(ch, true)
	}
	return f
}

// prepareJob 再生方式に応じたワーカージョブを作る
func (app *Application) prepareJob(ctx context.Context) (worker.Job, error) {
	cfg := app.config
	start := cfg.StartTick
	override := cfg.TempoOverride()

	if !cfg.Buffered {
		engine := playback.New(app.seq, app.sink.Send,
			playback.WithFilter(app.filter()),
			playback.WithLogger(app.log))
		if override > 0 {
			engine.SetTempoOverride(override)
		}
		engine.Start(start)
		app.engine = engine
		app.log.Info("Playback started", "mode", "engine", "startTick", start,
			"mutedTracks", engine.Filter().MutedTracks())
		return worker.EngineJob{Engine: engine}, nil
	}

	mute := app.filter()
	pre := prebuffer.NewPreprocessor()
	results, err := pre.Start(ctx, app.seq, prebuffer.Options{
		StartTick:     start,
		Mute:          mute,
		TempoOverride: override,
	})
	if err != nil {
		return nil, err
	}

	var res prebuffer.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	tempo := app.seq.Tempo.TempoAt(start)
	if override > 0 {
		tempo = override
	}
	player := worker.NewPlayer(app.sink.SendBytes)
	player.Setup(res.Messages, app.seq.PPQ, tempo, start)
	app.log.Info("Playback started", "mode", "buffered", "startTick", start,
		"mutedTracks", mute.MutedTracks(), "messages", len(res.Messages))
	return player, nil
}

// play ジョブが終わるかctxが終了するまでワーカーを動かす
func (app *Application) play(ctx context.Context, job worker.Job) error {
	w := worker.New(app.config.Interval, worker.WithLogger(app.log))
	if err := w.Start(job); err != nil {
		return err
	}

	select {
	case <-w.Done():
		app.log.Info("Playback finished")
	case <-ctx.Done():
		w.Stop()
		app.log.Info("Playback stopped", "reason", ctx.Err())
	}

	// ワーカー停止後なのでエンジンを参照してよい
	if app.engine != nil {
		app.log.Info("Playback position", "tick", app.engine.CurrentTick(), "elapsed", app.engine.Elapsed())
	}
	return nil
}
