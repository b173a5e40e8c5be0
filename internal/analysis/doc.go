// Package analysis post-processes logged run columns.
//
//   - [PowerSpectrum], [DominantFrequency]: spectral content of one column,
//     e.g. the gyro rate under an acoustic attack
//   - [NewPath], [PathToASCII]: the trajectory traced by two columns
//   - [Crossings]: times at which a column rises through a level
//
// Example, finding the injected resonance on the gyro rate:
//
//	r, _ := log.Column("rover.r_meas")
//	hz := analysis.DominantFrequency(r, meta.Step)
package analysis
