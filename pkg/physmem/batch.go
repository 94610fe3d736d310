package physmem

import (
	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// validate checks one request before dispatch.
func validate(addr address.PhysicalAddress, length int) error {
	if length == 0 {
		return memerrors.New(memerrors.ErrorTypeValidation, "zero-length request")
	}
	if _, err := addr.End(uint64(length), address.MaxWidth); err != nil {
		return err
	}
	return nil
}

// ReadMany validates reqs and dispatches the valid ones in batches of the
// backend's ideal batch size. It returns one completion per request in
// order; malformed requests fail individually and never reach the backend.
// The error is non-nil only when m itself is unusable.
func ReadMany(m Memory, reqs []core.ReadRequest) ([]core.Completion, error) {
	md, err := m.Metadata()
	if err != nil {
		return nil, err
	}

	out := make([]core.Completion, len(reqs))
	valid := make([]core.ReadRequest, 0, len(reqs))
	index := make([]int, 0, len(reqs))

	for i, req := range reqs {
		if err := validate(req.Addr, len(req.Buf)); err != nil {
			out[i].Err = err
			continue
		}
		valid = append(valid, req)
		index = append(index, i)
	}

	chunk := md.BatchSize(len(valid))
	for start := 0; start < len(valid); start += chunk {
		end := min(start+chunk, len(valid))
		results := m.ReadBatch(valid[start:end])
		collect(out, index[start:end], results)
	}
	return out, nil
}

// WriteMany is the write counterpart of ReadMany.
func WriteMany(m Memory, reqs []core.WriteRequest) ([]core.Completion, error) {
	md, err := m.Metadata()
	if err != nil {
		return nil, err
	}

	out := make([]core.Completion, len(reqs))
	valid := make([]core.WriteRequest, 0, len(reqs))
	index := make([]int, 0, len(reqs))

	for i, req := range reqs {
		if err := validate(req.Addr, len(req.Data)); err != nil {
			out[i].Err = err
			continue
		}
		valid = append(valid, req)
		index = append(index, i)
	}

	chunk := md.BatchSize(len(valid))
	for start := 0; start < len(valid); start += chunk {
		end := min(start+chunk, len(valid))
		results := m.WriteBatch(valid[start:end])
		collect(out, index[start:end], results)
	}
	return out, nil
}

// collect stores results at their request positions. Requests the memory
// returned no completion for fail with an internal error.
func collect(out []core.Completion, index []int, results []core.Completion) {
	for k, n := range index {
		if k >= len(results) {
			out[n].Err = memerrors.Newf(memerrors.ErrorTypeInternal,
				"no completion for request %d", n)
			continue
		}
		out[n] = results[k]
	}
}
