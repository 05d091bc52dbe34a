package loader

import (
	"io"

	"github.com/KarpelesLab/rafs"
)

// VerifyChunk recomputes cd's digest against the actual bytes at its
// recorded position in blobData and compares it to cd.Digest, returning a
// KindCorruption error on mismatch (spec 4.I invariant-adjacent check,
// and the mechanism behind Testable Property 6 / scenario S6: corrupting
// a blob byte must be caught). This is the real content-integrity check;
// GetInode's validateDigest flag only does a structural sanity check,
// since neither wire format stores a standalone inode-body digest.
func VerifyChunk(cd rafs.ChunkDescriptor, blob *rafs.BlobDescriptor, blobData io.ReaderAt) error {
	raw := make([]byte, cd.CompressedSize)
	if _, err := blobData.ReadAt(raw, int64(cd.CompressedOffset)); err != nil {
		return rafs.NewError(rafs.KindIO, blob.BlobID, err)
	}

	data := raw
	if cd.Compressed() {
		var err error
		data, err = blob.Compressor.Decompress(raw)
		if err != nil {
			return rafs.NewError(rafs.KindCorruption, blob.BlobID, err)
		}
	}

	sum, err := blob.Digester.Sum(data)
	if err != nil {
		return err
	}
	if sum != cd.Digest {
		return rafs.NewError(rafs.KindCorruption, blob.BlobID, rafs.ErrCorruption)
	}
	return nil
}
