package errors

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func ToGRPCCode(code string) codes.Code {
	_, grpcCode := GetCodeMapping(code)
	return codes.Code(grpcCode)
}

// ToGRPCError converts err into a gRPC status error. Errors that already carry
// a status pass through unchanged.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var coded Error
	if As(err, &coded) {
		return status.Error(ToGRPCCode(coded.Code()), coded.Error())
	}

	return status.Error(codes.Internal, err.Error())
}
