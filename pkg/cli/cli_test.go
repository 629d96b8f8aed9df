package cli

import (
	"reflect"
	"testing"
	"time"

	"github.com/zurustar/rolandseq/pkg/worker"
)

// clearEnv テスト中は設定用の環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MIDI_PORT", "SOUNDFONT", "TIMEOUT", "PLAYBACK_INTERVAL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Interval: worker.DefaultInterval,
		DeviceID: 0x10,
	}
}

func TestParseArgs_ValidArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		modify func(c *Config)
	}{
		{
			name:   "デフォルト設定",
			args:   []string{},
			modify: func(c *Config) {},
		},
		{
			name:   "MIDIファイル指定",
			args:   []string{"song.mid"},
			modify: func(c *Config) { c.MIDIFile = "song.mid" },
		},
		{
			name: "ポート指定（短縮形）とファイル",
			args: []string{"song.mid", "-p", "JD-Xi"},
			modify: func(c *Config) {
				c.MIDIFile = "song.mid"
				c.Port = "JD-Xi"
			},
		},
		{
			name:   "SoundFont指定",
			args:   []string{"--soundfont", "gm.sf2"},
			modify: func(c *Config) { c.SoundFont = "gm.sf2" },
		},
		{
			name:   "タイムアウト指定（短縮形）",
			args:   []string{"-t", "5"},
			modify: func(c *Config) { c.Timeout = 5 * time.Second },
		},
		{
			name:   "ログレベル指定",
			args:   []string{"--log-level", "debug"},
			modify: func(c *Config) { c.LogLevel = "debug" },
		},
		{
			name:   "ポーリング間隔指定",
			args:   []string{"--interval", "5"},
			modify: func(c *Config) { c.Interval = 5 * time.Millisecond },
		},
		{
			name: "開始位置とバッファ再生",
			args: []string{"--buffered", "song.mid", "--start", "1920"},
			modify: func(c *Config) {
				c.Buffered = true
				c.MIDIFile = "song.mid"
				c.StartTick = 1920
			},
		},
		{
			name: "ミュート指定",
			args: []string{"--mute-tracks", "1, 3", "--mute-channels=10"},
			modify: func(c *Config) {
				c.MuteTracks = []int{1, 3}
				c.MuteChannels = []uint8{9}
			},
		},
		{
			name:   "BPM上書き",
			args:   []string{"--bpm", "96"},
			modify: func(c *Config) { c.BPM = 96 },
		},
		{
			name:   "デバイスID指定",
			args:   []string{"--device-id", "0x11"},
			modify: func(c *Config) { c.DeviceID = 0x11 },
		},
		{
			name: "パラメータ複数指定",
			args: []string{"--sysex", "18002006=00", "--sysex", "19 01 00 10=7f01"},
			modify: func(c *Config) {
				c.Params = []Param{
					{Address: [4]byte{0x18, 0x00, 0x20, 0x06}, Data: []byte{0x00}},
					{Address: [4]byte{0x19, 0x01, 0x00, 0x10}, Data: []byte{0x7F, 0x01}},
				}
			},
		},
		{
			name:   "ポート一覧",
			args:   []string{"--list-ports"},
			modify: func(c *Config) { c.ListPorts = true },
		},
		{
			name: "ヘルプ表示（短縮形）",
			args: []string{"-h", "song.mid"},
			modify: func(c *Config) {
				c.ShowHelp = true
				c.MIDIFile = "song.mid"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			config, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := defaults()
			tt.modify(&want)
			if !reflect.DeepEqual(*config, want) {
				t.Errorf("got %+v, want %+v", *config, want)
			}
		})
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"負のタイムアウト", []string{"-t", "-5"}},
		{"不正なログレベル", []string{"--log-level", "verbose"}},
		{"不正なチャンネル", []string{"--mute-channels", "17"}},
		{"不正なトラック", []string{"--mute-tracks", "a"}},
		{"負のBPM", []string{"--bpm=-10"}},
		{"範囲外のデバイスID", []string{"--device-id", "0x05"}},
		{"不正なパラメータ", []string{"--sysex", "1800=00"}},
		{"8ビットのデータ", []string{"--sysex", "18002006=80"}},
		{"未定義のフラグ", []string{"--unknown"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := ParseArgs(tt.args); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestParseArgs_Environment(t *testing.T) {
	t.Run("環境変数から読み込む", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIDI_PORT", "JD-Xi")
		t.Setenv("SOUNDFONT", "env.sf2")
		t.Setenv("TIMEOUT", "30")
		t.Setenv("PLAYBACK_INTERVAL", "10")
		t.Setenv("LOG_LEVEL", "DEBUG")

		config, err := ParseArgs(nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Port != "JD-Xi" || config.SoundFont != "env.sf2" {
			t.Errorf("unexpected outputs: %+v", config)
		}
		if config.Timeout != 30*time.Second || config.Interval != 10*time.Millisecond {
			t.Errorf("unexpected timing: %+v", config)
		}
		if config.LogLevel != "debug" {
			t.Errorf("expected debug, got %s", config.LogLevel)
		}
	})

	t.Run("コマンドラインフラグが優先", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MIDI_PORT", "JD-Xi")
		t.Setenv("TIMEOUT", "30")

		config, err := ParseArgs([]string{"-p", "INTEGRA", "-t", "3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Port != "INTEGRA" || config.Timeout != 3*time.Second {
			t.Errorf("flags did not win: %+v", config)
		}
	})
}

func TestConfig_TempoOverride(t *testing.T) {
	tests := []struct {
		bpm  float64
		want uint32
	}{
		{0, 0},
		{120, 500000},
		{240, 250000},
		{96, 625000},
	}
	for _, tt := range tests {
		c := Config{BPM: tt.bpm}
		if got := c.TempoOverride(); got != tt.want {
			t.Errorf("TempoOverride(%g) = %d, want %d", tt.bpm, got, tt.want)
		}
	}
}

func TestReorderArgs(t *testing.T) {
	got := reorderArgs([]string{"song.mid", "--buffered", "-p", "JD-Xi", "--bpm=90", "extra"})
	want := []string{"--buffered", "-p", "JD-Xi", "--bpm=90", "song.mid", "extra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reorderArgs = %v, want %v", got, want)
	}
}
