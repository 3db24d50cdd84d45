// Package storage manages the local backup tree.
//
// The Manager works on a go-billy filesystem (osfs in production, memfs in
// tests) and treats it as a key-existence store:
//   - EnsureDir creates album directories idempotently
//   - Exists is the only state the sync decision reads
//   - Claim/Write/Commit publish a file atomically
//
// A claim is an exclusively created "<target>.lock" file holding the host
// and pid of its writer. Bytes go to "<target>.part" and are renamed onto
// the target only once complete, so an interrupted run never leaves a
// partial file under a final name. Two runs racing on the same target see
// the lock and only one of them writes. A lock whose process is gone is
// taken over at once; a lock from another host is honoured for
// StaleClaimAfter.
//
// Usage:
//
//	m := storage.NewOSManager(root, storage.Options{VerifyContent: true})
//	if err := m.EnsureDir("Vacation 2023"); err != nil {
//		return err
//	}
//	claim, err := m.Claim("Vacation 2023/0001-A.jpg")
//	if err != nil {
//		return err
//	}
//	if _, err := claim.Write(body); err != nil {
//		claim.Abort()
//		return err
//	}
//	return claim.Commit()
package storage
