package trace

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SigningKeyEnv names the environment variable holding the trace signing key.
const SigningKeyEnv = "KEYSTEP_TRACE_SIGNING_KEY"

// maxLine bounds one trace line; step outputs carry whole chat answers.
const maxLine = 1 << 20

// VerifyResult is the outcome of verifying a trace file.
type VerifyResult struct {
	RunID          string
	EventCount     int
	Valid          bool
	BrokenAt       int // 1-based event number, -1 if the chain is intact
	Signed         bool
	SignatureOK    bool
	SignatureNoKey bool // signed, but no key was given to check it
	SigningKeyID   string
	ChainHash      string
	Error          string
}

// lineHash is the chain link written into the next event's prev_hash.
func lineHash(line []byte) string {
	h := sha256.Sum256(line)
	return hex.EncodeToString(h[:])
}

// signChain is the run_complete signature over the final chain hash.
func signChain(key []byte, chainHash string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(chainHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyFile verifies the hash chain and optional signature of a trace file.
func VerifyFile(path string, key []byte) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f, key)
}

// Verify walks the events of one run. Every event must link to the hash of
// the line before it and belong to the same run; a closing run_complete must
// repeat the final hash as chain_hash. When key is non-empty the run_complete
// signature is checked against it.
func Verify(r io.Reader, key []byte) (*VerifyResult, error) {
	res := &VerifyResult{BrokenAt: -1}
	link := Genesis
	var last Event

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		res.EventCount++
		n := res.EventCount

		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return res.broken(n, "event %d is not valid JSON: %v", n, err), nil
		}
		if evt.PrevHash != link {
			return res.broken(n, "event %d (%s) does not follow event %d: prev_hash %s, want %s",
				n, evt.Type, n-1, short(evt.PrevHash), short(link)), nil
		}
		switch {
		case res.RunID == "":
			res.RunID = evt.RunID
		case evt.RunID != res.RunID:
			return res.broken(n, "event %d belongs to run %q, not %q", n, evt.RunID, res.RunID), nil
		}
		link = lineHash(line)
		last = evt
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	res.Valid = true

	if last.Type != EventRunComplete {
		return res, nil
	}
	res.ChainHash, _ = last.Data["chain_hash"].(string)
	if res.ChainHash != "" && res.ChainHash != last.PrevHash {
		return res.broken(res.EventCount, "run_complete chain_hash %s does not match its prev_hash %s",
			short(res.ChainHash), short(last.PrevHash)), nil
	}

	sig, ok := last.Data["signature"].(string)
	if !ok {
		return res, nil
	}
	res.Signed = true
	res.SigningKeyID, _ = last.Data["signing_key_id"].(string)
	switch {
	case len(key) == 0:
		res.SignatureNoKey = true
	case res.ChainHash != "":
		res.SignatureOK = hmac.Equal([]byte(sig), []byte(signChain(key, res.ChainHash)))
	}
	return res, nil
}

func (res *VerifyResult) broken(n int, format string, args ...any) *VerifyResult {
	res.Valid = false
	res.BrokenAt = n
	res.Error = fmt.Sprintf(format, args...)
	return res
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return h
}
