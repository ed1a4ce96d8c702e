package parser

// forbiddenControlWords is the exhaustive list from spec §4.4/§6: RTF
// constructs whose purpose is code execution, embedded binary objects,
// or field-instruction side effects. Any match is a hard rejection
// regardless of mode.
var forbiddenControlWords = map[string]bool{
	"object":     true,
	"objdata":    true,
	"objemb":     true,
	"objlink":    true,
	"objautlink": true,
	"objsub":     true,
	"objpub":     true,
	"objicemb":   true,
	"objhtml":    true,
	"objocx":     true,
	"result":     true,
	"pict":       true,
	"field":      true,
	"fldinst":    true,
	"fldrslt":    true,
	"datafield":  true,
	"datastore":  true,
	"xe":         true,
	"tc":         true,
	"bkmkstart":  true,
	"bkmkend":    true,
}

// isForbiddenControlWord reports whether name is in the hard-reject
// list. "*" generator sequences (\*\generator ...) are matched
// separately by the caller, since they are a symbol-word pair rather
// than a single control word.
func isForbiddenControlWord(name string) bool {
	return forbiddenControlWords[name]
}
