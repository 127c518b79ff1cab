// Package config loads the YAML configuration and builds the marker role
// table, logger list and camera model from it.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/arucoloc/internal/command"
	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/taglog"
	"github.com/ayusman/arucoloc/internal/vision"
)

// maxFileSize bounds the configuration file.
const maxFileSize = 1 * 1024 * 1024

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	LoggingFolder      string              `yaml:"logging_folder"`
	StorePath          string              `yaml:"store_path"`
	UDPServer          UDPServer           `yaml:"udp_server"`
	HTTP               HTTP                `yaml:"http"`
	Camera             Camera              `yaml:"camera"`
	Defaults           Defaults            `yaml:"defaults"`
	Markers            Markers             `yaml:"markers"`
	FrequencySelectors []FrequencySelector `yaml:"frequency_selectors"`
	Platforms          []Platform          `yaml:"platforms"`
	ShutdownHook       ShutdownHook        `yaml:"shutdown_hook"`
}

// UDPServer is the broadcast destination.
type UDPServer struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// HTTP configures the status server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Camera describes the capture device and its calibration.
type Camera struct {
	Device     string      `yaml:"device"`
	Width      int         `yaml:"width"`
	Height     int         `yaml:"height"`
	FPS        int         `yaml:"fps"`
	Dictionary string      `yaml:"dictionary"`
	Matrix     [][]float64 `yaml:"matrix"`
	Distortion []float64   `yaml:"distortion"`
}

// Defaults are the startup settings of the state machine.
type Defaults struct {
	MarkerSize         float64       `yaml:"marker_size"`
	BroadcastFrequency float64       `yaml:"broadcast_frequency"`
	Frame              string        `yaml:"frame"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
	Headless           bool          `yaml:"headless"`
}

// Markers assigns the reserved roles. OK and CALIBRATION are required.
type Markers struct {
	OK              *int `yaml:"OK"`
	Calibration     *int `yaml:"CALIBRATION"`
	BroadcastNever  *int `yaml:"BROADCAST_NEVER"`
	BroadcastAlways *int `yaml:"BROADCAST_ALWAYS"`
	FrameNED        *int `yaml:"FRAME_NED"`
	FrameENU        *int `yaml:"FRAME_ENU"`
	Shutdown        *int `yaml:"SHUTDOWN"`
}

// FrequencySelector is a marker that selects a broadcast rate.
type FrequencySelector struct {
	Marker int     `yaml:"marker"`
	Hz     float64 `yaml:"hz"`
}

// Platform is a tracked platform. Marker defaults to ID.
type Platform struct {
	ID     int    `yaml:"id"`
	Marker *int   `yaml:"marker"`
	Name   string `yaml:"name"`
}

// MarkerID returns the marker that identifies the platform.
func (p Platform) MarkerID() int {
	if p.Marker != nil {
		return *p.Marker
	}
	return p.ID
}

// ShutdownHook is an optional host command run after a shutdown command.
type ShutdownHook struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default configuration: %v", err))
	}
	return cfg
}

// DefaultYAML returns the text of the built-in configuration file.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultYAML))
	copy(out, defaultYAML)
	return out
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// EnsureDefault writes the built-in configuration to path if no file exists
// there. It reports whether a file was written.
func EnsureDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, defaultYAML, 0644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "arucoloc", "config", "configuration.yaml"), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) applyDefaults() {
	if c.Defaults.Frame == "" {
		c.Defaults.Frame = posemath.ENU.String()
	}
	if c.Defaults.ShutdownGrace == 0 {
		c.Defaults.ShutdownGrace = 10 * time.Second
	}
	if c.ShutdownHook.Timeout == 0 {
		c.ShutdownHook.Timeout = 30 * time.Second
	}
	if c.Camera.Device == "" {
		c.Camera.Device = "0"
	}
	if c.Camera.Dictionary == "" {
		c.Camera.Dictionary = "4x4_100"
	}
	if c.UDPServer.IP == "" {
		c.UDPServer.IP = "<broadcast>"
	}
	for i := range c.Platforms {
		if c.Platforms[i].Name == "" {
			c.Platforms[i].Name = fmt.Sprintf("Tag_%d", c.Platforms[i].ID)
		}
	}
}

// Validate checks field ranges and that the role table can be built.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.LoggingFolder == "" {
		add("logging_folder is required")
	}
	if c.UDPServer.Port <= 0 || c.UDPServer.Port > 65535 {
		add("udp_server.port must be between 1 and 65535, got %d", c.UDPServer.Port)
	}
	if c.Defaults.MarkerSize <= 0 {
		add("defaults.marker_size must be positive, got %g", c.Defaults.MarkerSize)
	}
	if c.Defaults.ShutdownGrace < 0 {
		add("defaults.shutdown_grace must not be negative")
	}
	if _, err := posemath.ParseConvention(c.Defaults.Frame); err != nil {
		add("defaults.frame: %w", err)
	}
	if _, err := c.Intrinsics(); err != nil {
		add("camera: %w", err)
	}
	if _, err := DictionaryByName(c.Camera.Dictionary); err != nil {
		add("camera.dictionary: %w", err)
	}
	if c.Markers.OK == nil {
		add("markers.OK is required")
	}
	if c.Markers.Calibration == nil {
		add("markers.CALIBRATION is required")
	}
	for i, fs := range c.FrequencySelectors {
		if fs.Hz <= 0 {
			add("frequency_selectors[%d].hz must be positive, got %g", i, fs.Hz)
		}
	}

	seen := make(map[int]bool)
	for _, p := range c.Platforms {
		if seen[p.ID] {
			add("platform id %d is listed twice", p.ID)
		}
		seen[p.ID] = true
	}

	if _, err := c.BuildRegistry(); err != nil {
		add("%w", err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Convention returns the configured startup convention.
func (c *Config) Convention() posemath.Convention {
	conv, err := posemath.ParseConvention(c.Defaults.Frame)
	if err != nil {
		return posemath.ENU
	}
	return conv
}

// BuildRegistry assigns every configured marker its role. Frequency selectors
// keep their listed order as precedence.
func (c *Config) BuildRegistry() (*command.Registry, error) {
	reg := command.NewRegistry()

	reserved := []struct {
		id   *int
		kind command.Kind
	}{
		{c.Markers.OK, command.KindOK},
		{c.Markers.Calibration, command.KindCalibration},
		{c.Markers.BroadcastAlways, command.KindBroadcastAlways},
		{c.Markers.BroadcastNever, command.KindBroadcastNever},
		{c.Markers.FrameNED, command.KindFrameNED},
		{c.Markers.FrameENU, command.KindFrameENU},
		{c.Markers.Shutdown, command.KindShutdown},
	}
	for _, r := range reserved {
		if r.id == nil {
			continue
		}
		if err := reg.Assign(*r.id, command.Role{Kind: r.kind}); err != nil {
			return nil, err
		}
	}

	for _, fs := range c.FrequencySelectors {
		role := command.Role{Kind: command.KindBroadcastFrequency, FrequencyHz: fs.Hz}
		if err := reg.Assign(fs.Marker, role); err != nil {
			return nil, err
		}
	}

	for _, p := range c.Platforms {
		role := command.Role{Kind: command.KindPlatform, Platform: p.ID}
		if err := reg.Assign(p.MarkerID(), role); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// TagPlatforms returns the logger list.
func (c *Config) TagPlatforms() []taglog.Platform {
	out := make([]taglog.Platform, len(c.Platforms))
	for i, p := range c.Platforms {
		out[i] = taglog.Platform{ID: p.ID, Name: p.Name}
	}
	return out
}

// Intrinsics returns the calibrated camera model.
func (c *Config) Intrinsics() (vision.Intrinsics, error) {
	return vision.NewIntrinsics(c.Camera.Matrix, c.Camera.Distortion)
}
