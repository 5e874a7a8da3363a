package webchat

import _ "embed"

// DefaultWidget is the embeddable chat widget served when no override file
// is configured. Sites include it with
// <script src=".../webchat/widget.js" data-clinic="<id>"></script>.
//
//go:embed widget.js
var DefaultWidget []byte
