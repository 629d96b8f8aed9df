// Package cli はコマンドライン引数と環境変数から設定を組み立てる
package cli

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/rolandseq/pkg/logger"
	"github.com/zurustar/rolandseq/pkg/sysex"
	"github.com/zurustar/rolandseq/pkg/worker"
)

// Param は起動時に送るパラメータ書き込み（DT1）
type Param struct {
	Address [4]byte
	Data    []byte
}

func (p Param) String() string {
	return fmt.Sprintf("%X=%X", p.Address[:], p.Data)
}

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	MIDIFile     string        // 再生するSMFのパス
	Port         string        // 出力ポート名（部分一致）
	SoundFont    string        // ポート未指定時に使うSF2ファイル
	LogLevel     string        // ログレベル（debug, info, warn, error）
	Interval     time.Duration // ワーカーのポーリング間隔
	StartTick    uint32        // 再生開始位置（tick）
	Buffered     bool          // 事前バッファ経由で再生する
	MuteTracks   []int         // ミュートするトラック（0始まり）
	MuteChannels []uint8       // ミュートするチャンネル（内部は0始まり）
	BPM          float64       // テンポ上書き（0は上書きなし）
	Timeout      time.Duration // タイムアウト時間（0は無制限）
	DeviceID     byte          // SysExのデバイスID
	Params       []Param       // 再生前に送るパラメータ
	ListPorts    bool          // 出力ポート一覧を表示
	ShowHelp     bool          // ヘルプ表示フラグ
}

// TempoOverride BPM上書きをマイクロ秒/拍に変換する（上書きなしは0）
func (c *Config) TempoOverride() uint32 {
	if c.BPM <= 0 {
		return 0
	}
	return uint32(60000000.0/c.BPM + 0.5)
}

// boolFlags 値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--h": true, "-help": true, "--help": true,
	"-buffered": true, "--buffered": true,
	"-list-ports": true, "--list-ports": true,
}

type paramList []Param

func (p *paramList) String() string {
	parts := make([]string, len(*p))
	for i, v := range *p {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

func (p *paramList) Set(s string) error {
	param, err := ParseParam(s)
	if err != nil {
		return err
	}
	*p = append(*p, param)
	return nil
}

// ParseParam "ADDR=DATA" 形式（16進、アドレスは4バイト）を解析する
func ParseParam(s string) (Param, error) {
	addrHex, dataHex, ok := strings.Cut(s, "=")
	if !ok {
		return Param{}, fmt.Errorf("invalid parameter %q: expected ADDR=DATA", s)
	}
	addr, err := decodeHex(addrHex)
	if err != nil || len(addr) != 4 {
		return Param{}, fmt.Errorf("invalid parameter address %q: expected 4 hex bytes", addrHex)
	}
	data, err := decodeHex(dataHex)
	if err != nil || len(data) == 0 {
		return Param{}, fmt.Errorf("invalid parameter data %q", dataHex)
	}

	var p Param
	copy(p.Address[:], addr)
	p.Data = data
	// 7ビット範囲外はここで弾く
	if _, err := sysex.DataSet(sysex.DefaultDeviceID, sysex.ModelJDXi, p.Address, p.Data...); err != nil {
		return Param{}, fmt.Errorf("invalid parameter %q: %w", s, err)
	}
	return p, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	return hex.DecodeString(s)
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("rolandseq", flag.ContinueOnError)

	config := &Config{}

	var (
		timeoutSec   int
		intervalMS   int
		startTick    uint
		muteTracks   string
		muteChannels string
		deviceID     string
		params       paramList
	)
	fs.StringVar(&config.Port, "port", "", "出力ポート名")
	fs.StringVar(&config.Port, "p", "", "出力ポート名（短縮形）")
	fs.StringVar(&config.SoundFont, "soundfont", "", "SoundFontファイル")
	fs.StringVar(&config.SoundFont, "s", "", "SoundFontファイル（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.IntVar(&intervalMS, "interval", 0, "ポーリング間隔（ミリ秒）")
	fs.UintVar(&startTick, "start", 0, "再生開始tick")
	fs.BoolVar(&config.Buffered, "buffered", false, "事前バッファ経由で再生")
	fs.StringVar(&muteTracks, "mute-tracks", "", "ミュートするトラック（カンマ区切り、0始まり）")
	fs.StringVar(&muteChannels, "mute-channels", "", "ミュートするチャンネル（カンマ区切り、1-16）")
	fs.Float64Var(&config.BPM, "bpm", 0, "テンポ上書き（BPM）")
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&deviceID, "device-id", "0x10", "SysExデバイスID")
	fs.Var(&params, "sysex", "再生前に送るパラメータ ADDR=DATA（複数指定可）")
	fs.BoolVar(&config.ListPorts, "list-ports", false, "出力ポート一覧を表示")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if config.Port == "" {
		config.Port = os.Getenv("MIDI_PORT")
	}
	if config.SoundFont == "" {
		config.SoundFont = os.Getenv("SOUNDFONT")
	}
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}
	if intervalMS == 0 {
		if intervalEnv := os.Getenv("PLAYBACK_INTERVAL"); intervalEnv != "" {
			if ms, err := strconv.Atoi(intervalEnv); err == nil && ms > 0 {
				intervalMS = ms
			}
		}
	}
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// 値の検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	if intervalMS < 0 {
		return nil, fmt.Errorf("interval must be non-negative, got %d", intervalMS)
	}
	config.Interval = worker.DefaultInterval
	if intervalMS > 0 {
		config.Interval = time.Duration(intervalMS) * time.Millisecond
	}

	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	if startTick > uint(^uint32(0)) {
		return nil, fmt.Errorf("start tick out of range: %d", startTick)
	}
	config.StartTick = uint32(startTick)

	if config.BPM < 0 {
		return nil, fmt.Errorf("bpm must be non-negative, got %g", config.BPM)
	}

	tracks, err := parseList(muteTracks, 0, 1<<16)
	if err != nil {
		return nil, fmt.Errorf("invalid --mute-tracks: %w", err)
	}
	config.MuteTracks = tracks

	channels, err := parseList(muteChannels, 1, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid --mute-channels: %w", err)
	}
	for _, ch := range channels {
		config.MuteChannels = append(config.MuteChannels, uint8(ch-1))
	}

	id, err := strconv.ParseUint(deviceID, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid device id %q: %w", deviceID, err)
	}
	config.DeviceID = byte(id)
	if _, err := sysex.Build(config.DeviceID, sysex.ModelJDXi, sysex.CommandDT1, [4]byte{}, nil); err != nil {
		return nil, fmt.Errorf("invalid device id %q: %w", deviceID, err)
	}
	config.Params = params

	// 位置引数（MIDIファイルのパス）
	if fs.NArg() > 0 {
		config.MIDIFile = fs.Arg(0)
	}

	return config, nil
}

// parseList カンマ区切りの整数を [lo, hi] の範囲で解析する
func parseList(s string, lo, hi int) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("%d out of range %d-%d", n, lo, hi)
		}
		out = append(out, n)
	}
	return out, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// --flag=value 形式とブール型フラグは次の引数を消費しない
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `rolandseq - Standard MIDI File player for Roland synthesizers

Usage:
  rolandseq [options] <midi-file>

Arguments:
  midi-file    再生するSMF（フォーマット0/1、大文字小文字は区別しない）

Options:
  -p, --port <name>           出力ポート名（部分一致）。未指定時はSoundFontで再生
  -s, --soundfont <file>      SoundFontファイル（.sf2）。ポートと併用すると両方で再生
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --interval <ms>             ポーリング間隔（デフォルト: 20）
  --start <tick>              再生開始位置
  --buffered                  事前バッファ経由で再生
  --mute-tracks <list>        ミュートするトラック（例: 1,3）
  --mute-channels <list>      ミュートするチャンネル 1-16（例: 10）
  --bpm <bpm>                 テンポを固定値で上書き
  -t, --timeout <seconds>     指定秒数後に再生を終了（デフォルト: 無制限）
  --device-id <id>            SysExデバイスID（デフォルト: 0x10）
  --sysex <ADDR=DATA>         再生前にDT1で送るパラメータ（16進、複数指定可）
  --list-ports                出力ポート一覧を表示
  -h, --help                  このヘルプを表示

Environment Variables:
  MIDI_PORT=<name>            出力ポート名
  SOUNDFONT=<file>            SoundFontファイル
  PLAYBACK_INTERVAL=<ms>      ポーリング間隔
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  rolandseq --list-ports
  rolandseq -p JD-Xi song.mid
  rolandseq -p JD-Xi --sysex 18002006=00 song.mid
  rolandseq -s GeneralUser-GS.sf2 --mute-channels 10 song.mid
  rolandseq -p JD-Xi --buffered --start 1920 --bpm 96 song.mid
`)
}
