package facetrack

// ActivationObserver is told once whether the plugin activated.
type ActivationObserver interface {
	OnActivate(activated bool)
}

// NameObserver receives the ordered blendshape names once per tracker.
type NameObserver interface {
	OnBlendShapeNames(names []string)
}

// ValueObserver receives one value vector per frame. An empty vector means
// no face was tracked; it is never nil.
type ValueObserver interface {
	OnBlendShapeValues(values []float64)
}

// RotationObserver receives the raw head rotation for tracked frames only.
type RotationObserver interface {
	OnHeadRotation(x, y, z, w float64)
}

// Listener is the full callback surface.
//
// OnBlendShapeNames always precedes the first OnBlendShapeValues.
type Listener interface {
	ActivationObserver
	NameObserver
	ValueObserver
	RotationObserver
}

// Observers composes independent observers into a Listener.
// Nil members are skipped.
type Observers struct {
	Activation ActivationObserver
	Names      NameObserver
	Values     ValueObserver
	Rotation   RotationObserver
}

func (o Observers) OnActivate(activated bool) {
	if o.Activation != nil {
		o.Activation.OnActivate(activated)
	}
}

func (o Observers) OnBlendShapeNames(names []string) {
	if o.Names != nil {
		o.Names.OnBlendShapeNames(names)
	}
}

func (o Observers) OnBlendShapeValues(values []float64) {
	if o.Values != nil {
		o.Values.OnBlendShapeValues(values)
	}
}

func (o Observers) OnHeadRotation(x, y, z, w float64) {
	if o.Rotation != nil {
		o.Rotation.OnHeadRotation(x, y, z, w)
	}
}

// ListenerFuncs adapts plain functions to a Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Activate func(activated bool)
	Names    func(names []string)
	Values   func(values []float64)
	Rotation func(x, y, z, w float64)
}

func (f ListenerFuncs) OnActivate(activated bool) {
	if f.Activate != nil {
		f.Activate(activated)
	}
}

func (f ListenerFuncs) OnBlendShapeNames(names []string) {
	if f.Names != nil {
		f.Names(names)
	}
}

func (f ListenerFuncs) OnBlendShapeValues(values []float64) {
	if f.Values != nil {
		f.Values(values)
	}
}

func (f ListenerFuncs) OnHeadRotation(x, y, z, w float64) {
	if f.Rotation != nil {
		f.Rotation(x, y, z, w)
	}
}

// Multi fans every callback out to each listener in order.
type Multi []Listener

func (m Multi) OnActivate(activated bool) {
	for _, l := range m {
		l.OnActivate(activated)
	}
}

func (m Multi) OnBlendShapeNames(names []string) {
	for _, l := range m {
		l.OnBlendShapeNames(names)
	}
}

func (m Multi) OnBlendShapeValues(values []float64) {
	for _, l := range m {
		l.OnBlendShapeValues(values)
	}
}

func (m Multi) OnHeadRotation(x, y, z, w float64) {
	for _, l := range m {
		l.OnHeadRotation(x, y, z, w)
	}
}
