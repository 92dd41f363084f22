package cluster

import "fmt"

// Config holds the cluster's persistence options: how many dead partitions
// are tolerated before the cluster refuses service, and how many upload
// replicas to require/attempt.
type Config struct {
	DeadThreshold uint32
	UploadMin     uint32
	UploadMax     uint32
}

// WithReplicationCount is the convenience setter from spec.md §3:
// DeadThreshold = R-1, UploadMin = UploadMax = R.
func (c Config) WithReplicationCount(r uint32) Config {
	c.DeadThreshold = r - 1
	c.UploadMin = r
	c.UploadMax = r
	return c
}

// Validate enforces spec.md §3's invariants:
// 0 <= DeadThreshold < partitionCount, 0 < UploadMin <= UploadMax <= partitionCount.
func (c Config) Validate(partitionCount uint32) error {
	if c.DeadThreshold >= partitionCount {
		return fmt.Errorf("cluster config: dead threshold %d must be less than partition count %d", c.DeadThreshold, partitionCount)
	}
	if c.UploadMin == 0 {
		return fmt.Errorf("cluster config: upload min must be greater than zero")
	}
	if c.UploadMin > c.UploadMax {
		return fmt.Errorf("cluster config: upload min %d exceeds upload max %d", c.UploadMin, c.UploadMax)
	}
	if c.UploadMax > partitionCount {
		return fmt.Errorf("cluster config: upload max %d exceeds partition count %d", c.UploadMax, partitionCount)
	}
	return nil
}
