package physics

const (
	DefaultMass   = 30.0
	DefaultLength = 13.0
	DefaultRadius = 5.0

	GravitationalConstant = 6.67430e-11
	EarthMass             = 5.972e24
	EarthMu               = GravitationalConstant * EarthMass
	EarthRadius           = 6371000.0

	StandardGravity = 9.81
)
