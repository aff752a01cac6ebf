// internal/config/config.go

// Package config reads the process configuration from the environment and an
// optional YAML run file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-reels/internal/chain"
	"github.com/tendant/simple-reels/internal/hosting"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/render"
	"github.com/tendant/simple-reels/internal/retry"
)

// MissingError lists required settings that are not set.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

type RenderConfig struct {
	APIKey       string
	BaseURL      string
	Duration     int
	Quality      render.Quality
	AspectRatio  string
	PollInterval time.Duration
	MaxWait      time.Duration
	Smooth       bool
	Crossfade    time.Duration
}

type PostConfig struct {
	Voiceover        bool
	Subtitles        bool
	SubtitleFontSize int
	WordsPerCue      int
	OpenAIKey        string
	TTSModel         string
	TTSVoice         string
	Covers           bool
}

type PublishConfig struct {
	APIKey        string
	BaseURL       string
	Targets       []publish.Target
	ScheduledTime string
	Accounts      map[string]string
	Payloads      publish.PayloadOptions
	MaxAttempts   int
	BackoffBase   time.Duration
	Timeout       time.Duration
}

// Policy is the retry policy for publishing and uploads.
func (p PublishConfig) Policy() retry.Policy {
	policy := retry.Default()
	policy.MaxAttempts = p.MaxAttempts
	policy.BaseDelay = p.BackoffBase
	return policy
}

type HostingConfig struct {
	Enabled  bool
	Store    hosting.StoreConfig
	OwnerID  uuid.UUID
	TenantID uuid.UUID
}

type YouTubeConfig struct {
	Direct       bool
	ClientID     string
	ClientSecret string
	RefreshToken string
	Description  string
	Tags         []string
}

type WorkerConfig struct {
	NATSURL      string
	RunSubject   string
	RunQueue     string
	EventSubject string
	Schedule     string
	HTTPAddr     string
	RunTimeout   time.Duration
}

// RunContent is what the next run renders and posts.
type RunContent struct {
	Prompt          string
	Scenes          []string
	VoiceoverScript string
	PostText        string
	TaskID          string
}

type Config struct {
	Production bool
	DevMode    bool
	LogLevel   slog.Level
	LogFormat  string
	WorkDir    string
	OutputDir  string

	Content RunContent
	Render  RenderConfig
	Post    PostConfig
	Publish PublishConfig
	Hosting HostingConfig
	YouTube YouTubeConfig
	Worker  WorkerConfig
}

// Publishing reports whether runs go all the way to the platforms.
func (c Config) Publishing() bool { return c.Production && !c.DevMode }

// Load reads the environment. When RUN_FILE is set, its fields override the
// content and target settings.
func Load() (Config, error) {
	cfg := Config{
		Production: getenvBool("PRODUCTION", false),
		DevMode:    getenvBool("DEV_MODE", false),
		LogFormat:  strings.ToLower(getenv("LOG_FORMAT", "text")),
		WorkDir:    getenv("WORK_DIR", ""),
		OutputDir:  getenv("OUTPUT_DIR", "./output"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Render, err = loadRender(); err != nil {
		return Config{}, err
	}
	if cfg.Post, err = loadPost(); err != nil {
		return Config{}, err
	}
	if cfg.Publish, err = loadPublish(); err != nil {
		return Config{}, err
	}
	if cfg.Hosting, err = loadHosting(); err != nil {
		return Config{}, err
	}
	cfg.YouTube = YouTubeConfig{
		Direct:       getenvBool("YOUTUBE_DIRECT", false),
		ClientID:     getenv("YOUTUBE_CLIENT_ID", ""),
		ClientSecret: getenv("YOUTUBE_CLIENT_SECRET", ""),
		RefreshToken: getenv("YOUTUBE_REFRESH_TOKEN", ""),
		Description:  getenv("YOUTUBE_DESCRIPTION", ""),
		Tags:         splitList(getenv("YOUTUBE_TAGS", "")),
	}
	if cfg.Worker, err = loadWorker(); err != nil {
		return Config{}, err
	}

	cfg.Content = RunContent{
		Prompt:          getenv("PROMPT", ""),
		VoiceoverScript: getenv("VOICEOVER_SCRIPT", ""),
		PostText:        getenv("BLOTATO_POST_TEXT", ""),
		TaskID:          getenv("TASK_ID", ""),
	}
	if scenes := getenv("SCENES", ""); scenes != "" {
		if cfg.Content.Scenes, err = parseScenes(scenes); err != nil {
			return Config{}, err
		}
	}
	hashtags := splitList(getenv("BLOTATO_HASHTAGS", ""))

	if path := getenv("RUN_FILE", ""); path != "" {
		rf, err := ReadRunFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.applyRunFile(rf)
		if len(rf.Hashtags) > 0 {
			hashtags = rf.Hashtags
		}
	}
	if cfg.Content.PostText == "" {
		cfg.Content.PostText = cfg.Content.Prompt
	}
	cfg.Content.PostText = withHashtags(cfg.Content.PostText, hashtags)

	if len(cfg.Publish.Targets) == 0 {
		cfg.Publish.Targets = defaultTargets(cfg.Publish.Accounts, getenv("BLOTATO_FACEBOOK_PAGE_ID", ""))
	}

	return cfg, cfg.validate()
}

func (c *Config) applyRunFile(rf *RunFile) {
	if rf.Prompt != "" {
		c.Content.Prompt = rf.Prompt
	}
	if len(rf.Scenes) > 0 {
		c.Content.Scenes = rf.Scenes
	}
	if rf.VoiceoverScript != "" {
		c.Content.VoiceoverScript = rf.VoiceoverScript
	}
	if rf.PostText != "" {
		c.Content.PostText = rf.PostText
	}
	if rf.TaskID != "" {
		c.Content.TaskID = rf.TaskID
	}
	if rf.ScheduledTime != "" {
		c.Publish.ScheduledTime = rf.ScheduledTime
	}
	if len(rf.Targets) > 0 {
		c.Publish.Targets = rf.Targets
	}
}

func (c Config) validate() error {
	var missing []string
	if c.Render.APIKey == "" {
		missing = append(missing, "KIE_API_KEY")
	}
	if c.Post.Voiceover && c.Post.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Publishing() {
		if c.Publish.APIKey == "" {
			missing = append(missing, "BLOTATO_API_KEY")
		}
		if len(c.Publish.Targets) == 0 {
			missing = append(missing, "BLOTATO_TARGETS")
		}
		if c.YouTube.Direct && (c.YouTube.ClientID == "" || c.YouTube.ClientSecret == "" || c.YouTube.RefreshToken == "") {
			missing = append(missing, "YOUTUBE_CLIENT_ID/YOUTUBE_CLIENT_SECRET/YOUTUBE_REFRESH_TOKEN")
		}
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json (got %q)", c.LogFormat)
	}
	return nil
}

func loadRender() (RenderConfig, error) {
	rc := RenderConfig{
		APIKey:      getenv("KIE_API_KEY", ""),
		BaseURL:     getenv("KIE_BASE_URL", render.DefaultKieBaseURL),
		Quality:     render.Quality(strings.ToLower(getenv("VIDEO_QUALITY", string(render.QualityFast)))),
		AspectRatio: getenv("VIDEO_ASPECT_RATIO", "9:16"),
		Smooth:      getenvBool("SMOOTH_TRANSITIONS", false),
	}
	var err error
	if rc.Duration, err = parsePositiveInt(getenv("VIDEO_DURATION", "8"), "VIDEO_DURATION"); err != nil {
		return rc, err
	}
	if err := render.Validate(render.Request{Prompt: "-", Duration: rc.Duration, Quality: rc.Quality}); err != nil {
		return rc, fmt.Errorf("VIDEO_DURATION/VIDEO_QUALITY: %w", err)
	}
	if rc.PollInterval, err = parseSeconds(getenv("POLL_INTERVAL", "15"), "POLL_INTERVAL"); err != nil {
		return rc, err
	}
	if rc.MaxWait, err = parseSeconds(getenv("VEO_MAX_WAIT_TIME", "600"), "VEO_MAX_WAIT_TIME"); err != nil {
		return rc, err
	}
	if rc.Crossfade, err = parseSeconds(getenv("CROSSFADE_SEC", chain.DefaultCrossfade.String()), "CROSSFADE_SEC"); err != nil {
		return rc, err
	}
	return rc, nil
}

func loadPost() (PostConfig, error) {
	pc := PostConfig{
		Voiceover: getenvBool("ENABLE_VOICEOVER", false),
		Subtitles: getenvBool("ENABLE_SUBTITLES", false),
		OpenAIKey: getenv("OPENAI_API_KEY", ""),
		TTSModel:  getenv("TTS_MODEL", "tts-1-hd"),
		TTSVoice:  getenv("TTS_VOICE", "nova"),
		Covers:    getenvBool("ENABLE_COVERS", true),
	}
	var err error
	if pc.SubtitleFontSize, err = parsePositiveInt(getenv("SUBTITLE_FONT_SIZE", "14"), "SUBTITLE_FONT_SIZE"); err != nil {
		return pc, err
	}
	if pc.WordsPerCue, err = parsePositiveInt(getenv("SUBTITLE_WORDS_PER_LINE", "8"), "SUBTITLE_WORDS_PER_LINE"); err != nil {
		return pc, err
	}
	return pc, nil
}

func loadPublish() (PublishConfig, error) {
	pc := PublishConfig{
		APIKey:        getenv("BLOTATO_API_KEY", ""),
		BaseURL:       getenv("BLOTATO_BASE_URL", ""),
		ScheduledTime: getenv("BLOTATO_SCHEDULED_TIME", ""),
		Accounts:      map[string]string{},
		Payloads:      publish.DefaultPayloadOptions(),
	}
	for platform, key := range map[string]string{
		publish.PlatformTikTok:    "TIKTOK_ACCOUNT_ID",
		publish.PlatformYouTube:   "BLOTATO_ACCOUNT_ID_YOUTUBE",
		publish.PlatformInstagram: "BLOTATO_ACCOUNT_ID_INSTAGRAM",
		publish.PlatformFacebook:  "BLOTATO_ACCOUNT_ID_FACEBOOK",
	} {
		if v := getenv(key, ""); v != "" {
			pc.Accounts[platform] = v
		}
	}

	pc.Payloads.YouTubeTitle = getenv("BLOTATO_YOUTUBE_TITLE", "")
	pc.Payloads.YouTubePrivacyStatus = getenv("BLOTATO_YOUTUBE_PRIVACY_STATUS", "public")
	pc.Payloads.YouTubeNotify = getenvBool("BLOTATO_YOUTUBE_NOTIFY_SUBSCRIBERS", false)
	pc.Payloads.TikTokPrivacyLevel = getenv("TIKTOK_PRIVACY_LEVEL", pc.Payloads.TikTokPrivacyLevel)

	if raw := getenv("BLOTATO_TARGETS", ""); raw != "" {
		targets, err := publish.ParseTargets(raw)
		if err != nil {
			return pc, fmt.Errorf("parse BLOTATO_TARGETS: %w", err)
		}
		pc.Targets = targets
	}

	var err error
	if pc.MaxAttempts, err = parsePositiveInt(getenv("PUBLISH_MAX_ATTEMPTS", "3"), "PUBLISH_MAX_ATTEMPTS"); err != nil {
		return pc, err
	}
	if pc.BackoffBase, err = parseSeconds(getenv("PUBLISH_BACKOFF_BASE", "1"), "PUBLISH_BACKOFF_BASE"); err != nil {
		return pc, err
	}
	if pc.Timeout, err = parseSeconds(getenv("PUBLISH_TIMEOUT", "300"), "PUBLISH_TIMEOUT"); err != nil {
		return pc, err
	}
	return pc, nil
}

func loadHosting() (HostingConfig, error) {
	hc := HostingConfig{
		Enabled: getenvBool("HOSTING_ENABLED", false),
		Store: hosting.StoreConfig{
			DatabaseType:   getenv("DATABASE_TYPE", "memory"),
			DatabaseURL:    getenv("DATABASE_URL", ""),
			DatabaseSchema: getenv("DATABASE_SCHEMA", "content"),
			Backend:        getenv("DEFAULT_STORAGE_BACKEND", "s3"),
			S3Bucket:       getenv("AWS_S3_BUCKET", ""),
			S3Region:       getenv("AWS_S3_REGION", "us-east-1"),
			S3AccessKey:    getenv("AWS_ACCESS_KEY_ID", ""),
			S3SecretKey:    getenv("AWS_SECRET_ACCESS_KEY", ""),
			S3Endpoint:     getenv("AWS_S3_ENDPOINT", ""),
			S3UseSSL:       getenvBool("AWS_S3_USE_SSL", false),
			S3UsePathStyle: getenvBool("AWS_S3_USE_PATH_STYLE", true),
		},
	}
	var err error
	if hc.OwnerID, err = parseUUID(getenv("HOSTING_OWNER_ID", ""), "HOSTING_OWNER_ID"); err != nil {
		return hc, err
	}
	if hc.TenantID, err = parseUUID(getenv("HOSTING_TENANT_ID", ""), "HOSTING_TENANT_ID"); err != nil {
		return hc, err
	}
	return hc, nil
}

func loadWorker() (WorkerConfig, error) {
	wc := WorkerConfig{
		NATSURL:      getenv("NATS_URL", "nats://127.0.0.1:4222"),
		RunSubject:   getenv("RUN_SUBJECT", "reels.runs.requested"),
		RunQueue:     getenv("RUN_QUEUE", "reel-workers"),
		EventSubject: getenv("EVENT_SUBJECT", "reels.runs.done"),
		Schedule:     getenv("RUN_SCHEDULE", ""),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
	}
	var err error
	if wc.RunTimeout, err = parseSeconds(getenv("RUN_TIMEOUT", "3600"), "RUN_TIMEOUT"); err != nil {
		return wc, err
	}
	return wc, nil
}

// parseUUID returns a fresh id when value is empty.
func parseUUID(value, name string) (uuid.UUID, error) {
	if value == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// parseScenes accepts a JSON string list or a "|" separated list.
func parseScenes(value string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(value), "[") {
		var scenes []string
		if err := json.Unmarshal([]byte(value), &scenes); err != nil {
			return nil, fmt.Errorf("parse SCENES: %w", err)
		}
		return scenes, nil
	}
	var scenes []string
	for _, s := range strings.Split(value, "|") {
		if s = strings.TrimSpace(s); s != "" {
			scenes = append(scenes, s)
		}
	}
	if len(scenes) == 0 {
		return nil, errors.New("SCENES is set but empty")
	}
	return scenes, nil
}

func withHashtags(text string, tags []string) string {
	var parts []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		if strings.Contains(text, t) {
			continue
		}
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(parts, " ")
	}
	return text + "\n\n" + strings.Join(parts, " ")
}

// defaultTargets publishes to every platform that has an account configured.
func defaultTargets(accounts map[string]string, facebookPageID string) []publish.Target {
	var targets []publish.Target
	for _, platform := range []string{publish.PlatformTikTok, publish.PlatformYouTube, publish.PlatformInstagram, publish.PlatformFacebook} {
		account, ok := accounts[platform]
		if !ok {
			continue
		}
		t := publish.Target{Platform: platform, AccountID: account}
		if platform == publish.PlatformFacebook {
			if facebookPageID == "" {
				continue
			}
			t.DestinationID = facebookPageID
		}
		targets = append(targets, t)
	}
	return targets
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
