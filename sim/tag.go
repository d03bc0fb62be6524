package sim

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
)

// TimestampTag records the simulation time a packet was originated.
type TimestampTag struct {
	Timestamp time.Duration
}

func (t *TimestampTag) TagName() string {
	return "trustmesh.TimestampTag"
}

func (t *TimestampTag) MarshalTag() ([]byte, error) {
	return proto.Marshal(durationpb.New(t.Timestamp))
}

func (t *TimestampTag) UnmarshalTag(b []byte) error {
	d := &durationpb.Duration{}
	if err := proto.Unmarshal(b, d); err != nil {
		return err
	}
	if err := d.CheckValid(); err != nil {
		return err
	}
	t.Timestamp = d.AsDuration()
	return nil
}
