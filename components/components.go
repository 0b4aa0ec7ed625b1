// Package components defines the ECS components of the growth simulation.
//
// Every point on the growth ring is an entity carrying a GrowthPoint. The
// ring keeps the cyclic order of entities and the quadtree indexes them by
// position; neither stores the component data itself.
package components
