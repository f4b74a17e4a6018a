package infra

import (
	"strings"
)

// KeySpace centraliza o nome das chaves de log de janela.
//
// Formato: <prefix>:{<client>}:<endpoint>:<window>
//
// O hash tag {<client>} garante que todas as janelas de um cliente caem no mesmo slot
// do Redis Cluster, o que o script multi-chave exige.
type KeySpace struct {
	prefix string
}

const DefaultKeyPrefix = "rate_limit"

func NewKeySpace(prefix string) KeySpace {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return KeySpace{prefix: prefix}
}

var braceEscaper = strings.NewReplacer("{", "%7B", "}", "%7D")

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func (k KeySpace) Window(clientID, endpoint, window string) string {
	return k.prefix + ":{" + braceEscaper.Replace(clientID) + "}:" + endpoint + ":" + window
}

// ClientPattern casa todas as janelas de um cliente (SCAN MATCH).
func (k KeySpace) ClientPattern(clientID string) string {
	return k.prefix + ":{" + globEscaper.Replace(braceEscaper.Replace(clientID)) + "}:*"
}

// EndpointPattern casa as janelas de um cliente para um endpoint.
func (k KeySpace) EndpointPattern(clientID, endpoint string) string {
	return k.prefix + ":{" + globEscaper.Replace(braceEscaper.Replace(clientID)) + "}:" + globEscaper.Replace(endpoint) + ":*"
}

func (k KeySpace) AllPattern() string {
	return k.prefix + ":{*"
}

// Parse desfaz Window. O endpoint pode conter ':'; a janela é sempre o último segmento.
func (k KeySpace) Parse(key string) (clientID, endpoint, window string, ok bool) {
	rest, found := strings.CutPrefix(key, k.prefix+":{")
	if !found {
		return "", "", "", false
	}
	client, rest, found := strings.Cut(rest, "}:")
	if !found {
		return "", "", "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", "", false
	}
	clientID = strings.NewReplacer("%7B", "{", "%7D", "}").Replace(client)
	return clientID, rest[:i], rest[i+1:], true
}
