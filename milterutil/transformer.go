// Package milterutil contains the line-ending transformers used by the
// message reassembly.
package milterutil

import (
	"golang.org/x/text/transform"
)

const cr = '\r'
const lf = '\n'

// CrLfToLfTransformer is a [transform.Transformer] that collapses every
// CR LF pair in src to a single LF in dst. A bare CR is data, not a line
// ending, and passes through unchanged.
type CrLfToLfTransformer struct {
	transform.NopResetter
}

func (t *CrLfToLfTransformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == cr {
			if nSrc+1 >= len(src) {
				if !atEOF {
					// the LF might be in the next chunk
					err = transform.ErrShortSrc
					return
				}
			} else if src[nSrc+1] == lf {
				if nDst >= len(dst) {
					err = transform.ErrShortDst
					return
				}
				dst[nDst] = lf
				nDst++
				nSrc += 2
				continue
			}
		}
		if nDst >= len(dst) {
			err = transform.ErrShortDst
			return
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return
}

var _ transform.Transformer = (*CrLfToLfTransformer)(nil)

// LfToCrLfTransformer is a [transform.Transformer] that expands every LF
// in src to CR LF in dst. Run it after [CrLfToLfTransformer]; on input
// that still contains CR LF it would produce CR CR LF.
type LfToCrLfTransformer struct {
	transform.NopResetter
}

func (t *LfToCrLfTransformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == lf {
			if nDst+2 > len(dst) {
				err = transform.ErrShortDst
				return
			}
			dst[nDst] = cr
			dst[nDst+1] = lf
			nDst += 2
			nSrc++
			continue
		}
		if nDst >= len(dst) {
			err = transform.ErrShortDst
			return
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return
}

var _ transform.Transformer = (*LfToCrLfTransformer)(nil)

// NewCrLfCanonicalTransformer returns a transformer chain that rewrites
// LF, CR LF or mixed line endings to canonical CR LF. The chain is
// idempotent: already canonical input passes through unchanged.
func NewCrLfCanonicalTransformer() transform.Transformer {
	return transform.Chain(&CrLfToLfTransformer{}, &LfToCrLfTransformer{})
}
