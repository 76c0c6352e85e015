// Package config loads the INI configuration file that selects models,
// endpoints, and storage backends. Missing keys fall back to defaults, and a
// handful of environment variables override file values so deployments can
// configure secrets without editing the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/mnemonlabs/mnemon"
)

// Storage backend types.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the full file configuration.
type Config struct {
	// defaults section
	Preset  string
	Persona string
	Human   string

	Model     mnemon.LLMConfig
	Embedding mnemon.EmbeddingConfig

	ArchivalStorage Storage
	RecallStorage   Storage
	MetadataStorage Storage

	Client Client
}

// Storage selects one storage backend.
type Storage struct {
	Type string
	Path string
	URI  string
}

// Client holds API-client settings.
type Client struct {
	BaseURL   string
	AnonID    string
	AuthToken string
}

// DefaultPath returns the conventional config location, overridable with
// MNEMON_CONFIG_PATH.
func DefaultPath() string {
	if p := os.Getenv("MNEMON_CONFIG_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config"
	}
	return filepath.Join(home, ".mnemon", "config")
}

// Load reads the INI file at path. A missing file yields the defaults.
// Values in the file are strings throughout; numeric keys are coerced here.
func Load(path string) (*Config, error) {
	cfg := defaults()

	file, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	def := file.Section("defaults")
	cfg.Preset = def.Key("preset").MustString(cfg.Preset)
	cfg.Persona = def.Key("persona").MustString(cfg.Persona)
	cfg.Human = def.Key("human").MustString(cfg.Human)

	model := file.Section("model")
	cfg.Model.Model = model.Key("model").MustString(cfg.Model.Model)
	cfg.Model.ModelEndpoint = model.Key("model_endpoint").MustString(cfg.Model.ModelEndpoint)
	cfg.Model.ModelWrapper = model.Key("model_wrapper").MustString(cfg.Model.ModelWrapper)
	cfg.Model.ContextWindow = model.Key("context_window").MustInt(cfg.Model.ContextWindow)

	embed := file.Section("embedding")
	cfg.Embedding.EmbeddingEndpoint = embed.Key("embedding_endpoint").MustString(cfg.Embedding.EmbeddingEndpoint)
	cfg.Embedding.EmbeddingModel = embed.Key("embedding_model").MustString(cfg.Embedding.EmbeddingModel)
	cfg.Embedding.EmbeddingDim = embed.Key("embedding_dim").MustInt(cfg.Embedding.EmbeddingDim)
	cfg.Embedding.EmbeddingChunkSize = embed.Key("embedding_chunk_size").MustInt(cfg.Embedding.EmbeddingChunkSize)

	loadStorage(file, "archival_storage", &cfg.ArchivalStorage)
	loadStorage(file, "recall_storage", &cfg.RecallStorage)
	loadStorage(file, "metadata_storage", &cfg.MetadataStorage)

	client := file.Section("client")
	cfg.Client.BaseURL = client.Key("base_url").MustString(cfg.Client.BaseURL)
	cfg.Client.AnonID = client.Key("anon_clientid").MustString(cfg.Client.AnonID)

	applyEnv(cfg)
	return cfg, nil
}

func loadStorage(file *ini.File, section string, out *Storage) {
	s := file.Section(section)
	out.Type = s.Key("type").MustString(out.Type)
	out.Path = s.Key("path").MustString(out.Path)
	out.URI = s.Key("uri").MustString(out.URI)
}

func defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Preset: "memgpt_chat",
		Model: mnemon.LLMConfig{
			Model:         "gpt-4",
			ContextWindow: mnemon.DefaultContextWindow,
		},
		Embedding: mnemon.EmbeddingConfig{
			EmbeddingModel:     "text-embedding-ada-002",
			EmbeddingDim:       1536,
			EmbeddingChunkSize: 300,
		},
		ArchivalStorage: Storage{Type: StorageSQLite, Path: filepath.Join(dataDir, "mnemon.db")},
		RecallStorage:   Storage{Type: StorageSQLite, Path: filepath.Join(dataDir, "mnemon.db")},
		MetadataStorage: Storage{Type: StorageSQLite, Path: filepath.Join(dataDir, "mnemon.db")},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".mnemon")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MNEMON_MODEL_ENDPOINT"); v != "" {
		cfg.Model.ModelEndpoint = v
	}
	if v := os.Getenv("MNEMON_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.EmbeddingEndpoint = v
	}
	if v := os.Getenv("MNEMON_SERVER_TOKEN"); v != "" {
		cfg.Client.AuthToken = v
	}
}

// APIKey returns the completion endpoint credential from the environment.
func APIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}
