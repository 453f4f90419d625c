// Package robot provides the joint-level control surface of the robot:
// the joint registry, the guarded actuator link and the controller that
// commands joints through it.
package robot

import (
	"fmt"
	"strings"
)

// Joint identifies a logical joint site.
type Joint int

// Joints of the Z-Bot, left side first.
const (
	LeftShoulder Joint = iota + 1
	LeftElbow
	LeftGripper
	RightShoulder
	RightElbow
	RightGripper
	LeftHip
	LeftKnee
	LeftAnkle
	RightHip
	RightKnee
	RightAnkle
)

var jointNames = map[Joint]string{
	LeftShoulder:  "left_shoulder",
	LeftElbow:     "left_elbow",
	LeftGripper:   "left_gripper",
	RightShoulder: "right_shoulder",
	RightElbow:    "right_elbow",
	RightGripper:  "right_gripper",
	LeftHip:       "left_hip",
	LeftKnee:      "left_knee",
	LeftAnkle:     "left_ankle",
	RightHip:      "right_hip",
	RightKnee:     "right_knee",
	RightAnkle:    "right_ankle",
}

func (j Joint) String() string {
	if name, ok := jointNames[j]; ok {
		return name
	}
	return fmt.Sprintf("joint(%d)", int(j))
}

// Limb groups the joints of one arm or leg.
type Limb int

const (
	LeftArm Limb = iota + 1
	RightArm
	LeftLeg
	RightLeg
)

// Limbs lists every limb in registry order.
func Limbs() []Limb {
	return []Limb{LeftArm, RightArm, LeftLeg, RightLeg}
}

func (l Limb) String() string {
	switch l {
	case LeftArm:
		return "left arm"
	case RightArm:
		return "right arm"
	case LeftLeg:
		return "left leg"
	case RightLeg:
		return "right leg"
	}
	return fmt.Sprintf("limb(%d)", int(l))
}

// Limb returns the limb the joint belongs to, or 0 for an unknown joint.
func (j Joint) Limb() Limb {
	switch j {
	case LeftShoulder, LeftElbow, LeftGripper:
		return LeftArm
	case RightShoulder, RightElbow, RightGripper:
		return RightArm
	case LeftHip, LeftKnee, LeftAnkle:
		return LeftLeg
	case RightHip, RightKnee, RightAnkle:
		return RightLeg
	}
	return 0
}

// ParseJoint parses a joint name such as "left_knee".
func ParseJoint(s string) (Joint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for j, name := range jointNames {
		if name == s {
			return j, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownJoint, s)
}

// Axis is a joint's rotation axis. Joints without an axis (grippers) use
// AxisNone.
type Axis int

const (
	AxisNone Axis = iota
	Pitch
	Yaw
	Roll
)

func (a Axis) String() string {
	switch a {
	case Pitch:
		return "pitch"
	case Yaw:
		return "yaw"
	case Roll:
		return "roll"
	default:
		return "none"
	}
}

// ParseAxis parses "pitch", "yaw", "roll" or "" / "none".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AxisNone, nil
	case "pitch":
		return Pitch, nil
	case "yaw":
		return Yaw, nil
	case "roll":
		return Roll, nil
	}
	return AxisNone, fmt.Errorf("unknown axis %q", s)
}

// ActuatorID identifies a physical actuator on the actuator service.
type ActuatorID int

type jointKey struct {
	joint Joint
	axis  Axis
}

// actuatorTable is the single source of the (joint, axis) -> actuator
// mapping. Its order is the order AllIDs reports.
var actuatorTable = []struct {
	joint Joint
	axis  Axis
	id    ActuatorID
}{
	{LeftShoulder, Yaw, 11},
	{LeftShoulder, Pitch, 12},
	{LeftElbow, Yaw, 13},
	{LeftGripper, AxisNone, 14},

	{RightShoulder, Yaw, 21},
	{RightShoulder, Pitch, 22},
	{RightElbow, Yaw, 23},
	{RightGripper, AxisNone, 24},

	{LeftHip, Yaw, 31},
	{LeftHip, Roll, 32},
	{LeftHip, Pitch, 33},
	{LeftKnee, Pitch, 34},
	{LeftAnkle, Pitch, 35},

	{RightHip, Yaw, 41},
	{RightHip, Roll, 42},
	{RightHip, Pitch, 43},
	{RightKnee, Pitch, 44},
	{RightAnkle, Pitch, 45},
}

var (
	byJoint map[jointKey]ActuatorID
	byID    map[ActuatorID]jointKey
)

func init() {
	byJoint, byID = buildIndex()
}

func buildIndex() (map[jointKey]ActuatorID, map[ActuatorID]jointKey) {
	fwd := make(map[jointKey]ActuatorID, len(actuatorTable))
	inv := make(map[ActuatorID]jointKey, len(actuatorTable))
	for _, e := range actuatorTable {
		k := jointKey{e.joint, e.axis}
		if e.id <= 0 {
			panic(fmt.Sprintf("robot: %s/%s has non-positive actuator id %d", e.joint, e.axis, e.id))
		}
		if _, dup := fwd[k]; dup {
			panic(fmt.Sprintf("robot: %s/%s mapped twice", e.joint, e.axis))
		}
		if prev, dup := inv[e.id]; dup {
			panic(fmt.Sprintf("robot: actuator %d mapped by both %s/%s and %s/%s",
				e.id, prev.joint, prev.axis, e.joint, e.axis))
		}
		fwd[k] = e.id
		inv[e.id] = k
	}
	return fwd, inv
}

// Resolve returns the actuator driving the given joint axis.
// It fails with ErrUnknownJoint if the pair is not part of the robot.
func Resolve(joint Joint, axis Axis) (ActuatorID, error) {
	id, ok := byJoint[jointKey{joint, axis}]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownJoint, joint, axis)
	}
	return id, nil
}

// Lookup returns the joint axis driven by an actuator.
func Lookup(id ActuatorID) (Joint, Axis, bool) {
	k, ok := byID[id]
	return k.joint, k.axis, ok
}

// AllIDs returns every actuator of the robot in registry order.
func AllIDs() []ActuatorID {
	ids := make([]ActuatorID, 0, len(actuatorTable))
	for _, e := range actuatorTable {
		ids = append(ids, e.id)
	}
	return ids
}

// DOF is one controllable joint axis in a DOF set.
type DOF struct {
	Name  string
	Joint Joint
	Axis  Axis
	ID    ActuatorID
}

// dofName builds the policy-facing name of a joint axis, e.g. L_Hip_Yaw.
// The axis in the name is always the axis of the actuator addressed.
func dofName(j Joint, a Axis) string {
	name := j.String()
	side, site, _ := strings.Cut(name, "_")
	s := strings.ToUpper(side[:1]) + "_" + strings.ToUpper(site[:1]) + site[1:]
	if a != AxisNone {
		s += "_" + strings.ToUpper(a.String()[:1]) + a.String()[1:]
	}
	return s
}

var canonicalDOFs = []jointKey{
	{LeftHip, Yaw},
	{LeftHip, Roll},
	{LeftHip, Pitch},
	{LeftKnee, Pitch},
	{LeftAnkle, Pitch},
	{RightHip, Yaw},
	{RightHip, Roll},
	{RightHip, Pitch},
	{RightKnee, Pitch},
	{RightAnkle, Pitch},
}

// CanonicalDOFs returns the walking DOF set in canonical order. Every
// vector exchanged with the policy is aligned to this order.
func CanonicalDOFs() []DOF {
	dofs := make([]DOF, 0, len(canonicalDOFs))
	for _, k := range canonicalDOFs {
		dofs = append(dofs, DOF{
			Name:  dofName(k.joint, k.axis),
			Joint: k.joint,
			Axis:  k.axis,
			ID:    byJoint[k],
		})
	}
	return dofs
}

// AllDOFs returns every joint axis of the robot in registry order.
func AllDOFs() []DOF {
	dofs := make([]DOF, 0, len(actuatorTable))
	for _, e := range actuatorTable {
		dofs = append(dofs, DOF{Name: dofName(e.joint, e.axis), Joint: e.joint, Axis: e.axis, ID: e.id})
	}
	return dofs
}

// ParseDOFSet builds a DOF set from policy-facing names, preserving their
// order. An empty list yields CanonicalDOFs.
func ParseDOFSet(names []string) ([]DOF, error) {
	if len(names) == 0 {
		return CanonicalDOFs(), nil
	}

	all := make(map[string]DOF, len(actuatorTable))
	for _, d := range AllDOFs() {
		all[d.Name] = d
	}

	seen := make(map[string]bool, len(names))
	dofs := make([]DOF, 0, len(names))
	for _, name := range names {
		d, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("%w: dof %q", ErrUnknownJoint, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("dof %q listed twice", name)
		}
		seen[name] = true
		dofs = append(dofs, d)
	}
	return dofs, nil
}

// IDs returns the actuator ids of a DOF set in order.
func IDs(dofs []DOF) []ActuatorID {
	ids := make([]ActuatorID, len(dofs))
	for i, d := range dofs {
		ids[i] = d.ID
	}
	return ids
}
