// Package all registers every codec shipped with dagstore.
package all

import (
	_ "xdao.co/dagstore/codec/dagcbor"
	_ "xdao.co/dagstore/codec/dagjson"
	_ "xdao.co/dagstore/codec/dagpb"
	_ "xdao.co/dagstore/codec/raw"
)
