// Package genetic implements the simulation-based genetic optimizer for the
// cost-driven fleet assignment problem. A genome holds, for every postcode,
// the fleet serving it. Genomes are scored by the deterministic cost model
// or by a Monte Carlo simulation over log-normal productivities.
package genetic
