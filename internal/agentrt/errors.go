package agentrt

import "github.com/forgeai/forge/internal/ferr"

func errInvalidFileChange(path string) error {
	return ferr.New(ferr.KindParse, "agentrt", "Validate", "file change for "+path+" has neither content nor diff", nil)
}

func unknownAgentKind(kind string) error {
	return ferr.New(ferr.KindConfig, "agentrt", "Process", "unknown agent_kind "+kind, nil)
}
