package builder

import (
	"github.com/KarpelesLab/rafs"
)

// hardlinkSentinelDev is the SrcDev value nodes loaded from a bootstrap
// carry (rafs.Node.Key's doc comment, "make dev invalid"); such nodes
// never participate in hardlink chunk sharing since they already carry
// their own Chunks.
const hardlinkSentinelDev = ^uint64(0)

// EmitChunks implements spec 4.D/4.B for every regular file in nodes:
// split content into chunks, look each one up in dict, and store misses
// via blobs. Chunking is skipped for a node that already carries Chunks
// (source.Bootstrap and source.Stargz populate them directly); such
// chunks are still registered into dict so later files can dedup against
// them.
//
// Hardlinked files (same SrcDev/SrcIno, nlink > 1) are chunked once: the
// first occurrence's resulting Chunks are reused verbatim for every later
// occurrence, fixing source/directory.go's scan-time copy (which ran
// before any chunking had happened and so copied an empty slice).
func EmitChunks(nodes []*rafs.Node, chunker *rafs.Chunker, dict *rafs.ChunkDict, blobs *rafs.BlobManager, comp rafs.Compressor, digester rafs.Algorithm, opener FileOpener) error {
	seen := make(map[rafs.HardlinkKey][]rafs.ChunkDescriptor)

	for _, n := range nodes {
		if !n.IsRegular() {
			continue
		}

		if len(n.Chunks) > 0 {
			for _, cd := range n.Chunks {
				dict.Add(cd)
			}
			continue
		}
		if n.Size == 0 {
			continue
		}

		key := n.Key()
		hardlinked := n.NLink > 1 && key.Dev != hardlinkSentinelDev
		if hardlinked {
			if cached, ok := seen[key]; ok {
				n.Chunks = cached
				continue
			}
		}

		chunks, err := chunkOne(n, chunker, dict, blobs, comp, digester, opener)
		if err != nil {
			return err
		}
		n.Chunks = chunks
		if hardlinked {
			seen[key] = chunks
		}
	}
	return nil
}

func chunkOne(n *rafs.Node, chunker *rafs.Chunker, dict *rafs.ChunkDict, blobs *rafs.BlobManager, comp rafs.Compressor, digester rafs.Algorithm, opener FileOpener) ([]rafs.ChunkDescriptor, error) {
	f, err := opener.Open(n)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []rafs.ChunkDescriptor
	err = chunker.Split(f, func(raw rafs.RawChunk) error {
		cd, _, err := dict.LookupOrStore(raw, func(raw rafs.RawChunk) (*rafs.ChunkDescriptor, error) {
			return blobs.StoreChunk(raw, chunker.ChunkSize, comp, digester)
		})
		if err != nil {
			return err
		}
		chunks = append(chunks, *cd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}
