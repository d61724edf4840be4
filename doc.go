// Package otutils builds sample chains for the Elektron Octatrack.
//
// A chain is a single mono 16-bit PCM .wav file made by concatenating
// other samples, paired with a .ot metadata file that tells the sampler
// where each source sample starts and ends (a "slice"). The Slicer type
// is the entry point:
//
//	s := otutils.NewSlicer("out", "chain")
//	for _, path := range paths {
//		if _, err := s.AddFile(path); err != nil {
//			// rejected files leave the chain untouched
//		}
//	}
//	err := s.GenerateOTFile(otutils.GenerateOptions{})
//
// Sources may be .wav or .aif/.aiff files, but must all be mono, 16-bit
// integer PCM at a single sample rate. The first accepted file pins the
// chain format; later files that differ are rejected. The Octatrack
// supports at most 64 slices per chain.
package otutils
