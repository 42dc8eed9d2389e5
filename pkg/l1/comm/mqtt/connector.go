package mqtt

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/mattbot/mcucomms/pkg/l1/msgs"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// RobotInfo is a robot found through its retained status.
type RobotInfo struct {
	ID     string
	Status *msgs.LinkStatus
}

// Discover collects the retained status of every robot under the
// queue's prefix. The queue must be connected.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]RobotInfo, error) {
	resCh := make(chan RobotInfo, 16)
	sub := q.SubWith("+/"+TopicStatus, QoSStatus, Handler(func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 2 {
			return
		}
		var status msgs.LinkStatus
		if err := msgs.UnmarshalInto(payload, &status); err != nil {
			glog.V(2).Infof("MQTT %s: %v", topic, err)
			return
		}
		select {
		case resCh <- RobotInfo{ID: items[0], Status: &status}:
		case <-time.After(time.Second):
		}
	}))
	defer sub.Close()

	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	found := make(map[string]RobotInfo)
	deadline := time.After(timeout)
	for {
		select {
		case info := <-resCh:
			found[info.ID] = info
		case <-deadline:
			return sortedRobots(found), nil
		case <-ctx.Done():
			return sortedRobots(found), ctx.Err()
		}
	}
}

func sortedRobots(found map[string]RobotInfo) []RobotInfo {
	res := make([]RobotInfo, 0, len(found))
	for _, info := range found {
		res = append(res, info)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
