// Package audit logs CLI command invocations with their resolved environment
// so operators can trace what ran and with which configuration. Secret values
// are reduced to presence/absence before logging.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// envVar names an environment variable included in the audit entry; secret
// values are redacted to "set"/"unset".
type envVar struct {
	name   string
	secret bool
}

// auditedVars is the ordered set of env vars recorded on every command start.
var auditedVars = []envVar{
	{name: "MODEL_PROVIDER"},
	{name: "OLLAMA_HOST"},
	{name: "OLLAMA_MODEL"},
	{name: "OPENAI_API_KEY", secret: true},
	{name: "OPENAI_MODEL"},
	{name: "AZURE_OPENAI_API_KEY", secret: true},
	{name: "AZURE_OPENAI_ENDPOINT"},
	{name: "AZURE_OPENAI_DEPLOYMENT"},
	{name: "GOOGLE_API_KEY", secret: true},
	{name: "GEMINI_MODEL"},
	{name: "EMBEDDING_PROVIDER"},
	{name: "EMBEDDING_MODEL"},
	{name: "EMBEDDING_API_KEY", secret: true},
	{name: "VECTOR_STORE"},
	{name: "CHROMADB_URL"},
	{name: "CHROMA_COLLECTION"},
	{name: "QDRANT_HOST"},
	{name: "QDRANT_PORT"},
	{name: "QDRANT_COLLECTION"},
	{name: "QDRANT_API_KEY", secret: true},
	{name: "ENABLE_RAG"},
	{name: "KNOWLEDGE_VAULT_PATH"},
	{name: "VAULTCHAT_API_KEY", secret: true},
	{name: "VAULTCHAT_HISTORY_DB"},
	{name: "LOG_LEVEL"},
	{name: "LOG_FORMAT"},
}

// LogCommandStart emits one structured audit entry when a CLI command begins,
// recording the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedVars)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, v := range auditedVars {
		attrs = append(attrs, slog.String(v.name, SanitiseKey(v.name, os.Getenv(v.name))))
	}
	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value safely for logging: secret keys become
// "set"/"unset", empty non-secret values become "unset", everything else
// passes through.
func SanitiseKey(key, value string) string {
	if value == "" {
		return "unset"
	}
	if isSecret(key) {
		return "set"
	}
	return value
}

func isSecret(key string) bool {
	for _, v := range auditedVars {
		if v.name == key {
			return v.secret
		}
	}
	return false
}

// sanitiseConfigPath replaces an empty path with "none" and redacts the home
// directory prefix.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
