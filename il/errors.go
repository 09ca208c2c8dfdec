package il

import "github.com/clrhost/clrhost/rterr"

func errTruncated(offset int) error {
	return rterr.New(rterr.BadImageFormat, "IL stream truncated at offset %d", offset)
}
