/*
go-pointtrack tracks user-selected objects across video frames without a
per-frame detector.  Each frame, several independent position estimators
run against the previous and current frame (optical flow block matching,
template correlation, an optional external detector feed and an optional
anchor module), their candidates are fused into a gated weighted
consensus, smoothed by a constant-velocity Kalman filter and applied
through a four state tracker lifecycle.  Objects lost to occlusion or
frame exit are re-acquired by a keypoint and color based
re-identification search.

See example code and usage in the example subdirectory.
*/
package pointtrack
