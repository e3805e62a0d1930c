package binding

import "markbind/internal/vlspec"

// ResolveChannel maps a mark property onto the encoding channel it binds.
//
// Secondary positional properties collapse onto the primary channel: binding
// x2 before x would otherwise produce a spec the compiler rejects.
func ResolveChannel(property string) string {
	switch property {
	case "x", "x+", "x2", "width":
		return vlspec.ChannelX
	case "y", "y+", "y2", "height":
		return vlspec.ChannelY
	case "fill", "stroke":
		return vlspec.ChannelColor
	}
	return property
}
