// Package catalog ships the built-in Discord entity schemas.
package catalog

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/zeusync/apischema/internal/core/schema/loader"
)

//go:embed discord.yaml
var source []byte

const (
	Message     = "Message"
	GuildMember = "GuildMember"
	User        = "User"
	Channel     = "Channel"
	Component   = "Component"

	MessageFlags = "MessageFlags"
	UserFlags    = "UserFlags"
)

var document = sync.OnceValues(func() (*loader.Document, error) {
	return loader.LoadYAML(bytes.NewReader(source))
})

// Document returns the parsed catalog. Callers must not modify it.
func Document() (*loader.Document, error) {
	return document()
}

// Register adds every catalog enum and entity to reg.
func Register(reg loader.Registrar) error {
	doc, err := document()
	if err != nil {
		return err
	}
	return doc.Apply(reg)
}

// Source is the raw catalog description.
func Source() []byte {
	return bytes.Clone(source)
}
